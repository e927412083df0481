// Package linkgraph holds build information for the linkgraph module.
package linkgraph

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/linkgraph/pkg/linkgraph.Version=...".
var Version = "0.1.0"
