package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

// Email records email steps without an outbound mail dependency. Delivery
// is logged and acknowledged; wiring a real provider replaces this executor
// via Registry.Register
type Email struct{}

var ErrNoRecipient = errors.New("email step has no recipient")

var _ Executor = (*Email)(nil)

func NewEmail() *Email {
	return &Email{}
}

func (e *Email) Execute(
	_ context.Context, step *api.Step, _ api.Args,
) (api.Args, error) {
	to := step.Config.GetString("to", "")
	if to == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoRecipient, step.ID)
	}

	subject := step.Config.GetString("subject", "")
	slog.Info("Email step recorded",
		log.StepID(step.ID),
		slog.String("to", to),
		slog.String("subject", subject))

	return api.Args{
		"delivered": true,
		"to":        to,
		"sent_at":   time.Now().UTC().Format(time.RFC3339),
	}, nil
}
