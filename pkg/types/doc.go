// Package types defines the link graph's entity types, the relation registry,
// the LinkManager contract with its hook and oracle interfaces, query values,
// and the standard error types.
package types
