// Package events defines the aggregate identifiers, event appliers, and
// stream filters for execution and engine state. State is only ever
// produced by applying events; every applier returns a fresh value.
package events

import (
	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/pkg/api"
)

// MakeAppliers converts an api-typed applier map into the form the event
// store dispatches on
func MakeAppliers[T any](
	m map[api.EventType]timebox.Applier[T],
) timebox.Appliers[T] {
	res := timebox.Appliers[T]{}
	for k, v := range m {
		res[timebox.EventType(k)] = v
	}
	return res
}
