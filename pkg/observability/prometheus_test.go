package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bietje/RBtree/pkg/observability"
)

func TestPrometheusHandler_ServesTreeMetrics(t *testing.T) {
	t.Parallel()

	handler, provider, err := observability.PrometheusHandler()
	require.NoError(t, err)

	tm, err := observability.NewTreeMetrics(provider.Meter("test"))
	require.NoError(t, err)

	tm.RecordOp(context.Background(), "shard-0", observability.OpInsert, observability.StatusOK, time.Microsecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	body := rec.Body.String()
	assert.Contains(t, body, "target_info")
	assert.Contains(t, body, "rbtree_ops")
	assert.Contains(t, body, `tree="shard-0"`)
}
