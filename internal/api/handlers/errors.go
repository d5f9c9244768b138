package handlers

import (
	"errors"
	"net/http"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/gin-gonic/gin"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		pbf *bulk.PartialBatchFailure
		be  *storage.BackendError
	)
	switch {
	case errors.Is(err, storage.ErrInvalidArgument), errors.Is(err, bulk.ErrNoJournal):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &pbf):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &be):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log := logger.With("http")
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondPlan writes p, attaching err when execution stopped partway.
func respondPlan(c *gin.Context, p *plan.Plan, err error) {
	if err != nil && p == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "plan": p})
		return
	}
	c.JSON(http.StatusOK, p)
}

func notFound(c *gin.Context, key string) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found", "key": key})
}
