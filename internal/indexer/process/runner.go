// Package process runs the external converter that produces journals and
// records each run's outcome in the outbox.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

const (
	defaultPoll     = 5 * time.Second
	defaultAttempts = 5
	defaultBackoff  = time.Minute
	maxDetail       = 4096
	markTimeout     = 10 * time.Second
)

// Runner executes converter runs taken from an outbox.
type Runner struct {
	cfg       config.ConverterConfig
	outbox    Outbox
	onSuccess func(ctx context.Context, msg Message) error
	logger    *slog.Logger
}

// NewRunner returns a runner. onSuccess, if set, runs after a converter
// exits cleanly and before the message is marked OK; its failure marks
// the message ERR.
func NewRunner(cfg config.ConverterConfig, outbox Outbox, onSuccess func(ctx context.Context, msg Message) error) *Runner {
	if cfg.OutboxPoll <= 0 {
		cfg.OutboxPoll = defaultPoll
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultBackoff
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = cfg.RetryBackoff
	}
	return &Runner{
		cfg:       cfg,
		outbox:    outbox,
		onSuccess: onSuccess,
		logger:    slog.Default().With("component", "converter"),
	}
}

// Poll claims and runs messages until ctx is done. After a failed run it
// waits for the next tick before claiming again.
func (r *Runner) Poll(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.OutboxPoll)
	defer ticker.Stop()
	for {
		for {
			msg, ok, err := r.outbox.Claim(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("claiming converter run failed", "error", err)
				break
			}
			if !ok {
				break
			}
			err = r.Run(ctx, msg)
			if errors.Is(err, apperrors.ErrInterrupted) {
				return nil
			}
			if err != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Run executes one converter run and marks its message. A run cut short
// by ctx is killed and marked DEAD. A timeout or non-zero exit is ERR,
// claimable again after an exponential backoff, until msg has used
// MaxAttempts; then it is DEAD.
func (r *Runner) Run(ctx context.Context, msg Message) error {
	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, r.cfg.Args...), msg.Args...)
	cmd := exec.CommandContext(runCtx, r.cfg.Command, args...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	logger := r.logger.With("message_id", msg.ID, "command", r.cfg.Command)
	logger.Info("converter started", "args", args)
	runErr := cmd.Run()

	var state State
	var result error
	switch {
	case ctx.Err() != nil:
		state = StateDead
		result = fmt.Errorf("%w: converter run %d", apperrors.ErrInterrupted, msg.ID)
	case runCtx.Err() != nil:
		state = StateErr
		result = fmt.Errorf("%w: converter run %d after %s", apperrors.ErrTimeout, msg.ID, r.cfg.Timeout)
	case runErr != nil:
		state = StateErr
		result = fmt.Errorf("converter run %d: %w", msg.ID, runErr)
	default:
		state = StateOK
		if r.onSuccess != nil {
			if err := r.onSuccess(ctx, msg); err != nil {
				state = StateErr
				result = fmt.Errorf("after converter run %d: %w", msg.ID, err)
			}
		}
	}

	var retryAfter time.Duration
	if state == StateErr {
		if msg.Attempts >= r.cfg.MaxAttempts {
			state = StateDead
			result = fmt.Errorf("%w (attempt %d of %d, giving up)", result, msg.Attempts, r.cfg.MaxAttempts)
		} else {
			retryAfter = r.backoff(msg.Attempts)
		}
	}

	detail := strings.TrimSpace(stderr.String())
	if result != nil {
		detail = strings.TrimSpace(result.Error() + "\n" + detail)
	}
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	// The outcome is recorded even when ctx was cancelled.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if err := r.outbox.Mark(markCtx, msg.ID, state, detail, retryAfter); err != nil {
		logger.Error("recording converter outcome failed", "state", state, "error", err)
		return errors.Join(result, err)
	}
	logger.Info("converter finished", "state", state, "attempt", msg.Attempts,
		"retry_after", retryAfter, "duration_ms", time.Since(start).Milliseconds())
	return result
}

// backoff is the wait before the attempt after attempt.
func (r *Runner) backoff(attempt int) time.Duration {
	d := r.cfg.RetryBackoff
	for i := 1; i < attempt && d < r.cfg.MaxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, r.cfg.MaxRetryBackoff)
}
