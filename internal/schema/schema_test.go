package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/internal/schema"
	"github.com/loomworks/loom/pkg/api"
)

func TestSchemaForBuiltins(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	for _, stepType := range []api.StepType{
		api.StepTypeManual, api.StepTypeHTTPRequest, api.StepTypeTransform,
		api.StepTypeScript, api.StepTypeCondition, api.StepTypeDelay,
		api.StepTypeEmail, api.StepTypeWebhook, api.StepTypeAICompletion,
	} {
		fields, err := r.SchemaFor(stepType)
		as.NoError(err)
		as.NotEmpty(fields, string(stepType))
	}

	_, err := r.SchemaFor("teleport")
	as.ErrorIs(err, schema.ErrUnknownStepType)
}

func TestValidateAppliesDefaults(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	fields, err := r.SchemaFor(api.StepTypeHTTPRequest)
	as.NoError(err)

	values, fe := schema.Validate(fields, api.Args{
		"url": "https://example.com/hook",
	})
	as.Nil(fe)
	as.Equal("https://example.com/hook", values["url"])
	as.Equal("GET", values["method"])
	as.Equal(float64(30), values["timeout_seconds"])
}

func TestValidateMissingRequired(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	fields, err := r.SchemaFor(api.StepTypeHTTPRequest)
	as.NoError(err)

	values, fe := schema.Validate(fields, api.Args{})
	as.Nil(values)
	as.True(fe.HasErrors())
	as.Contains(fe.Errors, "url")

	// empty string counts as missing
	values, fe = schema.Validate(fields, api.Args{"url": ""})
	as.Nil(values)
	as.True(fe.HasErrors())
}

func TestValidateSelectMembership(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	fields, err := r.SchemaFor(api.StepTypeHTTPRequest)
	as.NoError(err)

	values, fe := schema.Validate(fields, api.Args{
		"url":    "https://example.com",
		"method": "BREW",
	})
	as.Nil(values)
	as.True(fe.HasErrors())
	as.Contains(fe.Errors["method"], "not an option")
}

func TestValidateClampsNumbers(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	fields, err := r.SchemaFor(api.StepTypeAICompletion)
	as.NoError(err)

	values, fe := schema.Validate(fields, api.Args{
		"provider":    "openai",
		"model":       "gpt-4",
		"prompt":      "hello",
		"temperature": 1.5,
	})
	as.Nil(fe)
	as.Equal(1.0, values["temperature"])

	values, fe = schema.Validate(fields, api.Args{
		"provider":    "openai",
		"model":       "gpt-4",
		"prompt":      "hello",
		"temperature": -0.2,
	})
	as.Nil(fe)
	as.Equal(0.0, values["temperature"])
}

func TestValidateRejectsNonNumeric(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	fields, err := r.SchemaFor(api.StepTypeDelay)
	as.NoError(err)

	values, fe := schema.Validate(fields, api.Args{
		"duration_seconds": "soon",
	})
	as.Nil(values)
	as.True(fe.HasErrors())
	as.Contains(fe.Errors["duration_seconds"], "not a number")
}

func TestValidateJSONCoercion(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	fields, err := r.SchemaFor(api.StepTypeHTTPRequest)
	as.NoError(err)

	values, fe := schema.Validate(fields, api.Args{
		"url":     "https://example.com",
		"headers": `{"X-Token": "abc"}`,
	})
	as.Nil(fe)
	as.Equal(map[string]any{"X-Token": "abc"}, values["headers"])
}

func TestValidateInvalidJSONDegradesWithWarning(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	fields, err := r.SchemaFor(api.StepTypeHTTPRequest)
	as.NoError(err)

	values, fe := schema.Validate(fields, api.Args{
		"url":  "https://example.com",
		"body": `{"half": `,
	})
	as.NotNil(fe)
	as.False(fe.HasErrors())
	as.Contains(fe.Warnings["body"], "stored as text")
	as.Equal(`{"half": `, values["body"])
}

func TestValidateStep(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	values, fe := r.ValidateStep(&api.Step{
		ID:   "wait",
		Name: "Wait",
		Type: api.StepTypeDelay,
	})
	as.Nil(fe)
	as.Equal(float64(1), values["duration_seconds"])

	_, fe = r.ValidateStep(&api.Step{
		ID:   "odd",
		Name: "Odd",
		Type: "teleport",
	})
	as.True(fe.HasErrors())
	as.Contains(fe.Errors, "type")
}

func TestRegisterCustomType(t *testing.T) {
	as := assert.New(t)

	r := schema.NewRegistry()
	r.Register("custom", []*api.ConfigField{
		{Key: "mode", Kind: api.FieldText, Required: true},
	})

	fields, err := r.SchemaFor("custom")
	as.NoError(err)
	as.Len(fields, 1)
	as.Contains(r.Types(), api.StepType("custom"))
}
