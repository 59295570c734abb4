package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("scoring: %w", ErrInvalidInput), http.StatusBadRequest},
		{"empty corpus", ErrEmptyCorpus, http.StatusUnprocessableEntity},
		{"not fitted", fmt.Errorf("search: %w", ErrNotFitted), http.StatusServiceUnavailable},
		{"corrupt", Corruptf("artifact %q truncated", "params"), http.StatusInternalServerError},
		{"missing artifact", ErrArtifactNotFound, http.StatusNotFound},
		{"explicit status", New(ErrNotFitted, http.StatusConflict, "busy"), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusCode(tc.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("loading: %w", Corruptf("bad magic %x", 0xdead))
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.Contains(t, err.Error(), "bad magic dead")
}
