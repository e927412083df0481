//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the linkgraph project using Mage.
//
// Usage:
//
//	mage build          Compile linkgraph binary to bin/
//	mage test:all       Run all tests
//	mage test:unit pkg  Run the tests of packages matching pkg
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Run all tests and print coverage
//	mage vet            Run go vet
//	mage lint           Run go vet and golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install linkgraph to GOPATH/bin
//	mage stats          Print Go LOC
package main
