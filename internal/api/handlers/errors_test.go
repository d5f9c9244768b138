package handlers

import (
	"net/http"
	"testing"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", errors.Wrap(storage.ErrInvalidArgument, "from"), http.StatusBadRequest},
		{"no journal", bulk.ErrNoJournal, http.StatusBadRequest},
		{"unsupported", storage.ErrUnsupported, http.StatusNotImplemented},
		{"not found", errors.Wrap(storage.ErrNotFound, "plan x"), http.StatusNotFound},
		{"partial batch", &bulk.PartialBatchFailure{Err: storage.WrapBackend("s3", "copy", "a", errors.New("boom"))}, http.StatusConflict},
		{"backend", storage.WrapBackend("s3", "list", "a/", errors.New("timeout")), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
