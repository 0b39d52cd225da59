// Package graph canonicalizes a workflow definition into a single directed
// acyclic graph, regardless of which of the two equivalent input forms the
// definition uses. It validates referential integrity and acyclicity,
// produces deterministic topological orderings, and converts between the
// step-list and node/connection forms without losing or duplicating edges.
package graph
