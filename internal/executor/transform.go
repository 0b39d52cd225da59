package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/loomworks/loom/pkg/api"
)

// Transform performs transform steps: path extraction and reshaping over
// the step's resolved inputs using gjson path expressions
type Transform struct{}

var (
	ErrNoExpression   = errors.New("transform step has no expression")
	ErrBadOperation   = errors.New("unknown transform operation")
	ErrPathNotFound   = errors.New("expression matched nothing")
	ErrMergeNonObject = errors.New("merge requires object inputs")
)

var _ Executor = (*Transform)(nil)

func NewTransform() *Transform {
	return &Transform{}
}

func (t *Transform) Execute(
	_ context.Context, step *api.Step, inputs api.Args,
) (api.Args, error) {
	op := step.Config.GetString("operation", "extract")

	switch op {
	case "extract", "map":
		return t.extract(step, inputs)
	case "merge":
		return t.merge(inputs)
	case "format":
		return t.format(step, inputs)
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadOperation, op)
	}
}

func (t *Transform) extract(step *api.Step, inputs api.Args) (api.Args, error) {
	expr := step.Config.GetString("expression", "")
	if expr == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoExpression, step.ID)
	}

	doc, err := json.Marshal(inputs)
	if err != nil {
		return nil, err
	}

	value := gjson.GetBytes(doc, expr)
	if !value.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, expr)
	}
	return api.Args{"result": value.Value()}, nil
}

// merge flattens the object-valued inputs into one output map. Later keys
// win in input iteration order, which is unspecified; overlapping keys
// across dependencies should be avoided in definitions
func (t *Transform) merge(inputs api.Args) (api.Args, error) {
	res := api.Args{}
	for _, value := range inputs {
		obj, ok := value.(map[string]any)
		if !ok {
			if args, ok := value.(api.Args); ok {
				obj = args
			} else {
				return nil, ErrMergeNonObject
			}
		}
		for k, v := range obj {
			res[k] = v
		}
	}
	return res, nil
}

func (t *Transform) format(step *api.Step, inputs api.Args) (api.Args, error) {
	outputFormat := step.Config.GetString("output_format", "json")

	switch outputFormat {
	case "", "json":
		return api.Args{"result": map[string]any(inputs)}, nil
	case "text":
		encoded, err := json.Marshal(inputs)
		if err != nil {
			return nil, err
		}
		return api.Args{"result": string(encoded)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadOperation, outputFormat)
	}
}
