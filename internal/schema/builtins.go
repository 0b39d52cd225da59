package schema

import "github.com/loomworks/loom/pkg/api"

func floatPtr(f float64) *float64 {
	return &f
}

func registerBuiltins(r *Registry) {
	r.Register(api.StepTypeManual, []*api.ConfigField{
		{
			Key:   "instructions",
			Label: "Instructions",
			Kind:  api.FieldTextarea,
		},
	})

	r.Register(api.StepTypeHTTPRequest, []*api.ConfigField{
		{
			Key:      "url",
			Label:    "URL",
			Kind:     api.FieldText,
			Required: true,
		},
		{
			Key:     "method",
			Label:   "Method",
			Kind:    api.FieldSelect,
			Options: []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			Default: "GET",
		},
		{
			Key:   "headers",
			Label: "Headers",
			Kind:  api.FieldJSON,
		},
		{
			Key:   "body",
			Label: "Request Body",
			Kind:  api.FieldJSON,
		},
		{
			Key:     "timeout_seconds",
			Label:   "Timeout (seconds)",
			Kind:    api.FieldNumber,
			Default: float64(30),
			Min:     floatPtr(1),
			Max:     floatPtr(300),
		},
	})

	r.Register(api.StepTypeTransform, []*api.ConfigField{
		{
			Key:     "operation",
			Label:   "Operation",
			Kind:    api.FieldSelect,
			Options: []string{"extract", "map", "merge", "format"},
			Default: "extract",
		},
		{
			Key:      "expression",
			Label:    "Expression",
			Kind:     api.FieldTextarea,
			Required: true,
		},
		{
			Key:     "output_format",
			Label:   "Output Format",
			Kind:    api.FieldSelect,
			Options: []string{"json", "text"},
			Default: "json",
		},
	})

	r.Register(api.StepTypeScript, []*api.ConfigField{
		{
			Key:      "source",
			Label:    "Script Source",
			Kind:     api.FieldTextarea,
			Required: true,
		},
		{
			Key:     "timeout_seconds",
			Label:   "Timeout (seconds)",
			Kind:    api.FieldNumber,
			Default: float64(10),
			Min:     floatPtr(1),
			Max:     floatPtr(60),
		},
	})

	r.Register(api.StepTypeCondition, []*api.ConfigField{
		{
			Key:      "expression",
			Label:    "Condition Expression",
			Kind:     api.FieldTextarea,
			Required: true,
		},
		{
			Key:     "on_false",
			Label:   "When False",
			Kind:    api.FieldSelect,
			Options: []string{"skip_dependents", "fail"},
			Default: "skip_dependents",
		},
	})

	r.Register(api.StepTypeDelay, []*api.ConfigField{
		{
			Key:     "duration_seconds",
			Label:   "Duration (seconds)",
			Kind:    api.FieldNumber,
			Default: float64(1),
			Min:     floatPtr(0),
			Max:     floatPtr(3600),
		},
	})

	r.Register(api.StepTypeEmail, []*api.ConfigField{
		{
			Key:      "to",
			Label:    "Recipient",
			Kind:     api.FieldText,
			Required: true,
		},
		{
			Key:      "subject",
			Label:    "Subject",
			Kind:     api.FieldText,
			Required: true,
		},
		{
			Key:   "body",
			Label: "Body",
			Kind:  api.FieldTextarea,
		},
	})

	r.Register(api.StepTypeWebhook, []*api.ConfigField{
		{
			Key:      "path",
			Label:    "Webhook Path",
			Kind:     api.FieldText,
			Required: true,
		},
		{
			Key:     "method",
			Label:   "Method",
			Kind:    api.FieldSelect,
			Options: []string{"GET", "POST", "PUT"},
			Default: "POST",
		},
		{
			Key:     "authentication",
			Label:   "Authentication",
			Kind:    api.FieldSelect,
			Options: []string{"none", "api_key", "bearer"},
			Default: "none",
		},
	})

	r.Register(api.StepTypeAICompletion, []*api.ConfigField{
		{
			Key:     "provider",
			Label:   "Provider",
			Kind:    api.FieldSelect,
			Options: []string{"openai", "anthropic", "local"},
			Default: "openai",
		},
		{
			Key:      "model",
			Label:    "Model",
			Kind:     api.FieldText,
			Required: true,
		},
		{
			Key:     "temperature",
			Label:   "Temperature",
			Kind:    api.FieldSlider,
			Default: float64(0.7),
			Min:     floatPtr(0),
			Max:     floatPtr(1),
			Step:    floatPtr(0.1),
		},
		{
			Key:     "max_tokens",
			Label:   "Max Tokens",
			Kind:    api.FieldNumber,
			Default: float64(1024),
			Min:     floatPtr(1),
			Max:     floatPtr(32768),
		},
		{
			Key:   "system_prompt",
			Label: "System Prompt",
			Kind:  api.FieldTextarea,
		},
		{
			Key:      "prompt",
			Label:    "Prompt",
			Kind:     api.FieldTextarea,
			Required: true,
		},
	})
}
