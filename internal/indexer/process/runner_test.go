package process

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

// memOutbox claims like converter_outbox: NEW rows, and ERR rows whose
// backoff has passed, oldest id first.
type memOutbox struct {
	mu        sync.Mutex
	order     []int64
	msgs      map[int64]Message
	states    map[int64]State
	details   map[int64]string
	notBefore map[int64]time.Time
	claims    int
}

func newMemOutbox(msgs ...Message) *memOutbox {
	m := &memOutbox{
		msgs:      map[int64]Message{},
		states:    map[int64]State{},
		details:   map[int64]string{},
		notBefore: map[int64]time.Time{},
	}
	for _, msg := range msgs {
		m.order = append(m.order, msg.ID)
		m.msgs[msg.ID] = msg
		m.states[msg.ID] = StateNew
	}
	return m
}

func (m *memOutbox) Claim(context.Context) (Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		st := m.states[id]
		if st == StateNew || (st == StateErr && !time.Now().Before(m.notBefore[id])) {
			msg := m.msgs[id]
			msg.Attempts++
			m.msgs[id] = msg
			m.states[id] = StateRunning
			m.claims++
			return msg, true, nil
		}
	}
	return Message{}, false, nil
}

func (m *memOutbox) Mark(_ context.Context, id int64, state State, detail string, retryAfter time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = state
	m.details[id] = detail
	m.notBefore[id] = time.Now().Add(retryAfter)
	return nil
}

func (m *memOutbox) state(id int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

func (m *memOutbox) claimCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims
}

func TestRunSuccess(t *testing.T) {
	box := newMemOutbox()
	var seen []string
	r := NewRunner(config.ConverterConfig{Command: "echo"}, box, func(_ context.Context, msg Message) error {
		seen = msg.Args
		return nil
	})
	require.NoError(t, r.Run(context.Background(), Message{ID: 1, Args: []string{"a.wal"}}))
	assert.Equal(t, StateOK, box.state(1))
	assert.Equal(t, []string{"a.wal"}, seen)
}

func TestRunFailureMarksErr(t *testing.T) {
	box := newMemOutbox()
	r := NewRunner(config.ConverterConfig{Command: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}}, box, nil)
	err := r.Run(context.Background(), Message{ID: 2})
	require.Error(t, err)
	assert.Equal(t, StateErr, box.state(2))
	assert.Contains(t, box.details[2], "broken")
}

func TestRunSuccessHookFailureMarksErr(t *testing.T) {
	box := newMemOutbox()
	r := NewRunner(config.ConverterConfig{Command: "true"}, box, func(context.Context, Message) error {
		return errors.New("construct failed")
	})
	require.Error(t, r.Run(context.Background(), Message{ID: 3}))
	assert.Equal(t, StateErr, box.state(3))
}

func TestRunTimeoutMarksErr(t *testing.T) {
	box := newMemOutbox()
	r := NewRunner(config.ConverterConfig{Command: "sleep", Args: []string{"10"}, Timeout: 50 * time.Millisecond}, box, nil)
	err := r.Run(context.Background(), Message{ID: 4})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, StateErr, box.state(4))
}

func TestRunInterruptedMarksDead(t *testing.T) {
	box := newMemOutbox()
	r := NewRunner(config.ConverterConfig{Command: "sleep", Args: []string{"10"}}, box, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := r.Run(ctx, Message{ID: 5})
	assert.ErrorIs(t, err, apperrors.ErrInterrupted)
	assert.Equal(t, StateDead, box.state(5))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPollDrainsOutbox(t *testing.T) {
	box := newMemOutbox(Message{ID: 10}, Message{ID: 11})
	r := NewRunner(config.ConverterConfig{Command: "true", OutboxPoll: 10 * time.Millisecond}, box, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.Poll(ctx) }()

	assert.Eventually(t, func() bool {
		return box.state(10) == StateOK && box.state(11) == StateOK
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestPollWaitsOutBackoffAfterFailure(t *testing.T) {
	box := newMemOutbox(Message{ID: 20})
	r := NewRunner(config.ConverterConfig{
		Command:      "false",
		OutboxPoll:   10 * time.Millisecond,
		RetryBackoff: time.Hour,
	}, box, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, r.Poll(ctx))
	assert.Equal(t, 1, box.claimCount())
	assert.Equal(t, StateErr, box.state(20))
}

func TestPollGivesUpAfterMaxAttempts(t *testing.T) {
	box := newMemOutbox(Message{ID: 30}, Message{ID: 31, Args: []string{"ok"}})
	r := NewRunner(config.ConverterConfig{
		Command:      "sh",
		Args:         []string{"-c", `test "$0" = ok`},
		OutboxPoll:   5 * time.Millisecond,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}, box, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.Poll(ctx) }()

	assert.Eventually(t, func() bool {
		return box.state(30) == StateDead && box.state(31) == StateOK
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 4, box.claimCount())
	assert.Contains(t, box.details[30], "giving up")
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	r := NewRunner(config.ConverterConfig{RetryBackoff: time.Second, MaxRetryBackoff: 5 * time.Second}, newMemOutbox(), nil)
	assert.Equal(t, time.Second, r.backoff(1))
	assert.Equal(t, 2*time.Second, r.backoff(2))
	assert.Equal(t, 4*time.Second, r.backoff(3))
	assert.Equal(t, 5*time.Second, r.backoff(4))
	assert.Equal(t, 5*time.Second, r.backoff(10))
}
