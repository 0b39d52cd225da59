// Package loom is a workflow automation engine. Workflows are directed
// acyclic graphs of typed steps; the engine canonicalizes either of two
// equivalent definition forms (flat steps with dependencies, or nodes with
// connections), projects a deterministic layout for visual editing, and
// executes the graph in dependency order with live, event-sourced status
// tracking.
package loom

const (
	// Name is the service name reported in logs and health checks
	Name = "loom"

	// Version is the engine version
	Version = "0.3.0"
)
