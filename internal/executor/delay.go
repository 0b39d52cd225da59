package executor

import (
	"context"
	"time"

	"github.com/loomworks/loom/pkg/api"
)

// Delay pauses for a configured duration. Cancellation interrupts the wait
type Delay struct{}

var _ Executor = (*Delay)(nil)

func NewDelay() *Delay {
	return &Delay{}
}

func (d *Delay) Execute(
	ctx context.Context, step *api.Step, _ api.Args,
) (api.Args, error) {
	seconds := step.Config.GetFloat("duration_seconds", 1)
	if seconds <= 0 {
		seconds = 1
	}
	dur := time.Duration(seconds * float64(time.Second))

	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return api.Args{"delayed_ms": dur.Milliseconds()}, nil
}
