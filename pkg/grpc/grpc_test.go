package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/logger"
)

type echoReq struct {
	Text string `json:"text"`
}

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ServeListener(ln)
	}()
	t.Cleanup(func() {
		s.Stop()
		<-done
	})
	return ln.Addr().String()
}

func TestCallRoundTrip(t *testing.T) {
	s := NewServer()
	s.Register("Echo.Say", func(_ context.Context, raw json.RawMessage) (any, error) {
		var req echoReq
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		return echoReq{Text: req.Text + "!"}, nil
	})
	s.Register("Echo.Fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("no")
	})
	assert.Equal(t, 2, s.MethodCount())

	c, err := Dial(startServer(t, s))
	require.NoError(t, err)
	defer c.Close()

	var out echoReq
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoReq{Text: "hi"}, &out))
	assert.Equal(t, "hi!", out.Text)

	err = c.Call(context.Background(), "Echo.Fail", nil, nil)
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "no")

	err = c.Call(context.Background(), "Echo.Missing", nil, nil)
	assert.ErrorIs(t, err, ErrRemote)

	// The connection survives remote errors.
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoReq{Text: "again"}, &out))
	assert.Equal(t, "again!", out.Text)
}

func TestCallPropagatesDeadline(t *testing.T) {
	s := NewServer()
	s.Register("Clock.Deadline", func(ctx context.Context, _ json.RawMessage) (any, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	c, err := Dial(startServer(t, s))
	require.NoError(t, err)
	defer c.Close()

	var has bool
	require.NoError(t, c.Call(context.Background(), "Clock.Deadline", nil, &has))
	assert.False(t, has)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, c.Call(ctx, "Clock.Deadline", nil, &has))
	assert.True(t, has)
}

func TestCallForwardsRequestIDAndRedials(t *testing.T) {
	s := NewServer()
	s.Register("Trace.ID", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return logger.RequestID(ctx), nil
	})
	c, err := Dial(startServer(t, s))
	require.NoError(t, err)
	defer c.Close()

	var id string
	require.NoError(t, c.Call(logger.WithRequestID(context.Background(), "req-42"), "Trace.ID", nil, &id))
	assert.Equal(t, "req-42", id)

	require.NoError(t, c.Close())
	require.NoError(t, c.Call(context.Background(), "Trace.ID", nil, &id))
	assert.NotEmpty(t, id)
	assert.NotEqual(t, "req-42", id)
}

func TestCallWithExpiredContext(t *testing.T) {
	s := NewServer()
	c, err := Dial(startServer(t, s))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	assert.ErrorIs(t, c.Call(ctx, "Any.Thing", nil, nil), context.DeadlineExceeded)
}

func TestStopCancelsInFlightHandlers(t *testing.T) {
	s := NewServer()
	entered := make(chan struct{})
	s.Register("Slow.Wait", func(ctx context.Context, _ json.RawMessage) (any, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)

	c, err := Dial(ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	callErr := make(chan error, 1)
	go func() { callErr <- c.Call(context.Background(), "Slow.Wait", nil, nil) }()
	<-entered
	s.Stop()

	select {
	case err := <-callErr:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not return after Stop")
	}
}
