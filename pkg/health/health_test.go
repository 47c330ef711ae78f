package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeIndex struct {
	loaded bool
}

func (f fakeIndex) IsLoaded() bool      { return f.loaded }
func (f fakeIndex) GenerationID() string { return "gen-1" }

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", IndexCheck(fakeIndex{loaded: true}))
	c.Register("redis", PingCheck(func(context.Context) error { return errors.New("refused") }))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["index"].Status)
	assert.Contains(t, report.Components["index"].Message, "gen-1")
	assert.Equal(t, "refused", report.Components["redis"].Message)

	c.Register("index", IndexCheck(fakeIndex{}))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestPingCheckWithoutDependency(t *testing.T) {
	assert.Equal(t, StatusDegraded, PingCheck(nil)(context.Background()).Status)
	assert.Equal(t, StatusUp, PingCheck(func(context.Context) error { return nil })(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", PingCheck(nil))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("index", IndexCheck(fakeIndex{}))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no generation loaded")
}

func TestStatusOrdering(t *testing.T) {
	assert.True(t, StatusDown.worse(StatusDegraded))
	assert.True(t, StatusDegraded.worse(StatusUp))
	assert.False(t, StatusUp.worse(StatusUp))
	assert.Equal(t, StatusUp, NewChecker().Run(context.Background()).Status)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())
}
