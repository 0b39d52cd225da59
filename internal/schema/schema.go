// Package schema derives per-step-type configuration field sets and
// validates submitted config values against them. Validation is pure: it
// returns coerced values plus structured field errors and soft warnings,
// never mutating its inputs.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// Registry maps step types to their configuration field schemas
	Registry struct {
		fields map[api.StepType][]*api.ConfigField
	}

	// FieldErrors collects per-field validation failures and soft warnings
	// from one validation pass
	FieldErrors struct {
		Errors   map[string]string
		Warnings map[string]string
	}
)

var (
	ErrUnknownStepType = errors.New("unknown step type")
	ErrFieldRequired   = errors.New("field is required")
	ErrNotAnOption     = errors.New("value is not an option")
	ErrNotANumber      = errors.New("value is not a number")
	ErrNotABoolean     = errors.New("value is not a boolean")
)

func (e *FieldErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for key, msg := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", key, msg))
	}
	return strings.Join(parts, "; ")
}

// HasErrors reports whether validation produced hard failures. Warnings
// alone leave a submission valid
func (e *FieldErrors) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}

// NewRegistry creates a registry pre-populated with the built-in step types
func NewRegistry() *Registry {
	r := &Registry{fields: map[api.StepType][]*api.ConfigField{}}
	registerBuiltins(r)
	return r
}

// Register installs or replaces the schema for a step type
func (r *Registry) Register(t api.StepType, fields []*api.ConfigField) {
	r.fields[t] = fields
}

// SchemaFor returns the configuration fields for a step type
func (r *Registry) SchemaFor(t api.StepType) ([]*api.ConfigField, error) {
	fields, ok := r.fields[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, t)
	}
	return fields, nil
}

// Types returns all registered step types
func (r *Registry) Types() []api.StepType {
	types := make([]api.StepType, 0, len(r.fields))
	for t := range r.fields {
		types = append(types, t)
	}
	return types
}

// ValidateStep validates a step's config against its type schema
func (r *Registry) ValidateStep(step *api.Step) (api.Args, *FieldErrors) {
	fields, err := r.SchemaFor(step.Type)
	if err != nil {
		return nil, &FieldErrors{
			Errors: map[string]string{"type": err.Error()},
		}
	}
	return Validate(fields, step.Config)
}

// Validate checks submitted values against a field schema, returning the
// defaulted and coerced values. Bounded numeric values are clamped into
// range rather than rejected, and unparseable JSON is retained as a raw
// string with a warning so a half-typed value never blocks the user
func Validate(
	fields []*api.ConfigField, values api.Args,
) (api.Args, *FieldErrors) {
	res := api.Args{}
	fe := &FieldErrors{
		Errors:   map[string]string{},
		Warnings: map[string]string{},
	}

	for _, field := range fields {
		value, ok := values[field.Key]
		if !ok || isEmpty(value) {
			if field.Default != nil {
				res[field.Key] = field.Default
				continue
			}
			if field.Required {
				fe.Errors[field.Key] = ErrFieldRequired.Error()
			}
			continue
		}

		coerced, err, warn := coerceField(field, value)
		if err != nil {
			fe.Errors[field.Key] = err.Error()
			continue
		}
		if warn != "" {
			fe.Warnings[field.Key] = warn
		}
		res[field.Key] = coerced
	}

	if len(fe.Errors) == 0 && len(fe.Warnings) == 0 {
		return res, nil
	}
	if !fe.HasErrors() {
		return res, fe
	}
	return nil, fe
}

func coerceField(
	field *api.ConfigField, value any,
) (coerced any, err error, warning string) {
	switch field.Kind {
	case api.FieldText, api.FieldTextarea:
		return fmt.Sprintf("%v", value), nil, ""

	case api.FieldSelect:
		str := fmt.Sprintf("%v", value)
		if !field.HasOption(str) {
			return nil, fmt.Errorf("%w: %q", ErrNotAnOption, str), ""
		}
		return str, nil, ""

	case api.FieldBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrNotABoolean, value), ""
		}
		return b, nil, ""

	case api.FieldNumber, api.FieldSlider:
		num, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrNotANumber, value), ""
		}
		return field.Clamp(num), nil, ""

	case api.FieldJSON:
		return coerceJSON(value)

	default:
		return value, nil, ""
	}
}

// coerceJSON parses string submissions into structured values. Invalid JSON
// degrades to string storage instead of failing; the warning lets the UI
// flag it without blocking submission
func coerceJSON(value any) (any, error, string) {
	str, ok := value.(string)
	if !ok {
		return value, nil, ""
	}

	var parsed any
	if err := json.Unmarshal([]byte(str), &parsed); err != nil {
		return str, nil, fmt.Sprintf("stored as text: %v", err)
	}
	return parsed, nil, ""
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if str, ok := value.(string); ok {
		return str == ""
	}
	return false
}
