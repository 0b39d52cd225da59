package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

// HTTP performs http_request steps against external services
type HTTP struct {
	client *http.Client
}

const DefaultHTTPTimeout = 30 * time.Second

var (
	ErrNoURL     = errors.New("http_request step has no url")
	ErrHTTPError = errors.New("request returned HTTP error")
)

var _ Executor = (*HTTP)(nil)

func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (h *HTTP) Execute(
	ctx context.Context, step *api.Step, inputs api.Args,
) (api.Args, error) {
	url := step.Config.GetString("url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoURL, step.ID)
	}

	method := step.Config.GetString("method", http.MethodGet)

	req, err := h.buildRequest(ctx, step, method, url, inputs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	dur := time.Since(start)

	if err != nil {
		slog.Error("HTTP request failed",
			log.StepID(step.ID),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Failed to read response body",
			log.StepID(step.ID),
			log.Error(err))
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		slog.Error("HTTP error",
			log.StepID(step.ID),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
	}

	res := api.Args{
		"status_code": resp.StatusCode,
		"duration_ms": dur.Milliseconds(),
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		res["body"] = string(body)
	} else {
		res["body"] = parsed
	}
	return res, nil
}

func (h *HTTP) buildRequest(
	ctx context.Context, step *api.Step, method, url string, inputs api.Args,
) (*http.Request, error) {
	var reader io.Reader
	if body, ok := step.Config["body"]; ok && body != nil {
		encoded, err := json.Marshal(resolveBody(body, inputs))
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if headers, ok := step.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	return req, nil
}

// resolveBody substitutes the magic "$inputs" body with the step's resolved
// inputs, letting a request forward upstream outputs without templating
func resolveBody(body any, inputs api.Args) any {
	if s, ok := body.(string); ok && s == "$inputs" {
		return inputs
	}
	return body
}
