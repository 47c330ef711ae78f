// Package consumer reads index control commands from Kafka and applies
// them to the index: switching to a staged generation, or constructing one
// from journals first.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/kafka"
)

// Command actions.
const (
	ActionSwitch    = "switch"
	ActionConstruct = "construct"
)

// Event statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusIgnored = "ignored"
)

// Command is one control message.
type Command struct {
	Action    string   `json:"action"`
	Journals  []string `json:"journals,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// Event reports the outcome of a command.
type Event struct {
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	RequestID  string    `json:"request_id,omitempty"`
	Generation string    `json:"generation,omitempty"`
	Documents  int       `json:"documents"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Index is the part of the container commands act on.
type Index interface {
	SwitchIndex(ctx context.Context) error
	Status() indexer.Status
}

// Constructor stages a generation from journals.
type Constructor func(ctx context.Context, journals []string) error

// Handler applies commands.
type Handler struct {
	index     Index
	construct Constructor
	events    kafka.Publisher
	logger    *slog.Logger
}

// NewHandler returns a handler for index. construct may be nil, in which
// case construct commands are ignored; events may be nil.
func NewHandler(index Index, construct Constructor, events kafka.Publisher) *Handler {
	return &Handler{
		index:     index,
		construct: construct,
		events:    events,
		logger:    slog.Default().With("component", "index-consumer"),
	}
}

// Handle decodes and applies one message. Malformed and unknown commands
// are dropped; a failed switch is reported as an event rather than
// retried, since the staged generation will not improve by itself.
func (h *Handler) Handle(ctx context.Context, key []byte, value []byte) error {
	cmd, err := kafka.DecodeJSON[Command](value)
	if err != nil {
		h.logger.Error("failed to decode index command", "error", err, "key", string(key))
		return nil
	}
	ev := Event{Action: cmd.Action, RequestID: cmd.RequestID}
	switch cmd.Action {
	case ActionSwitch:
		err = h.index.SwitchIndex(ctx)
	case ActionConstruct:
		if h.construct == nil {
			ev.Status = StatusIgnored
			h.logger.Warn("construct command ignored, no constructor configured", "request_id", cmd.RequestID)
			return h.publish(ctx, ev)
		}
		if err = h.construct(ctx, cmd.Journals); err != nil {
			err = fmt.Errorf("constructing generation: %w", err)
			break
		}
		err = h.index.SwitchIndex(ctx)
	default:
		ev.Status = StatusIgnored
		h.logger.Warn("unknown index command", "action", cmd.Action, "request_id", cmd.RequestID)
		return h.publish(ctx, ev)
	}

	st := h.index.Status()
	ev.Generation = st.Generation
	ev.Documents = st.Documents
	if err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
		h.logger.Error("index command failed", "action", cmd.Action, "request_id", cmd.RequestID, "error", err)
	} else {
		ev.Status = StatusOK
		h.logger.Info("index command applied", "action", cmd.Action, "generation", st.Generation, "documents", st.Documents)
	}
	return h.publish(ctx, ev)
}

func (h *Handler) publish(ctx context.Context, ev Event) error {
	if h.events == nil {
		return nil
	}
	ev.At = time.Now().UTC()
	if err := h.events.Publish(ctx, kafka.Event{Key: ev.Action, Value: ev}); err != nil {
		// The command itself was applied; redelivery would repeat it.
		h.logger.Warn("publishing index event failed", "action", ev.Action, "error", err)
	}
	return nil
}

// IndexConsumer runs a Handler over the control topic.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}
