//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets (all, unit, race, cover).
type Test mg.Namespace

const coverProfile = "coverage.out"

// All runs every test in the module.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-v", "./...")
}

// Unit runs the tests of one package tree, e.g. "mage test:unit engine".
func (Test) Unit(pkg string) error {
	pkgs, err := sh.Output(binGo, "list", "./...")
	if err != nil {
		return err
	}
	var matched []string
	for p := range strings.SplitSeq(pkgs, "\n") {
		if p != "" && strings.Contains(p, "/"+pkg) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		fmt.Printf("No packages match %q.\n", pkg)
		return nil
	}
	args := append([]string{"test", "-v"}, matched...)
	return sh.RunV(binGo, args...)
}

// Race runs every test with the race detector. The engine and sqlite
// packages exercise concurrent writers.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "-count=1", "./...")
}

// Cover runs every test and prints per-function coverage.
func (Test) Cover() error {
	if err := sh.RunV(binGo, "test", "-coverprofile="+coverProfile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+coverProfile)
}
