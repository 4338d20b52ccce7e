package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "/api/v1/instances", "202"))

	ObserveRequest("POST", "/api/v1/instances", 202, 40*time.Millisecond)

	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "/api/v1/instances", "202"))
	assert.Equal(t, before+1, after)
}

func TestObserveDeployment(t *testing.T) {
	before := testutil.ToFloat64(Deployments.WithLabelValues("success"))

	ObserveDeployment("success", 3*time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(Deployments.WithLabelValues("success")))
}
