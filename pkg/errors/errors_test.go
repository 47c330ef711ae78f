package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("switch: %w", ErrSwapFailed), http.StatusConflict},
		{fmt.Errorf("%w: rev-full.dat", ErrMissingFile), http.StatusConflict},
		{fmt.Errorf("run 3: %w", ErrTimeout), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusCode(tc.err), tc.err.Error())
	}
}

func TestMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "invalid input: limit must be positive",
		Message(fmt.Errorf("%w: limit must be positive", ErrInvalidInput)))
	assert.Equal(t, "missing index file",
		Message(fmt.Errorf("%w: /data/index/current/rev-full.dat", ErrMissingFile)))
	assert.Equal(t, "internal error", Message(fmt.Errorf("open /secret: permission denied")))
}
