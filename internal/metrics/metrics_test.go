package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestHandlerExposesCounters(t *testing.T) {
	Init()
	Init()

	ObjectsCopied.WithLabelValues("metrics-test").Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(ObjectsCopied.WithLabelValues("metrics-test")))

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `cloudpath_objects_copied_total{backend="metrics-test"} 3`))
}
