package api

import "slices"

type (
	// FieldKind is the tagged variant discriminator for configuration
	// fields. Validation dispatches on this tag rather than on field names
	FieldKind string

	// ConfigField describes one configurable input of a step type: how it
	// is rendered and how submitted values are validated and coerced
	ConfigField struct {
		Default  any       `json:"default,omitempty"`
		Min      *float64  `json:"min,omitempty"`
		Max      *float64  `json:"max,omitempty"`
		Step     *float64  `json:"step,omitempty"`
		Key      string    `json:"key"`
		Label    string    `json:"label"`
		Kind     FieldKind `json:"kind"`
		Options  []string  `json:"options,omitempty"`
		Required bool      `json:"required"`
	}
)

const (
	FieldText     FieldKind = "text"
	FieldNumber   FieldKind = "number"
	FieldBoolean  FieldKind = "boolean"
	FieldSelect   FieldKind = "select"
	FieldTextarea FieldKind = "textarea"
	FieldJSON     FieldKind = "json"
	FieldSlider   FieldKind = "slider"
)

// HasOption reports whether value is one of the field's declared options
func (f *ConfigField) HasOption(value string) bool {
	return slices.Contains(f.Options, value)
}

// Clamp bounds a numeric value to the field's [Min, Max] range. Fields
// without declared bounds pass values through unchanged
func (f *ConfigField) Clamp(value float64) float64 {
	if f.Min != nil && value < *f.Min {
		return *f.Min
	}
	if f.Max != nil && value > *f.Max {
		return *f.Max
	}
	return value
}
