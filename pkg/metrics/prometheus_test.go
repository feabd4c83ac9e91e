package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordCombination("accepted")
	r.RecordCombination("accepted")
	r.RecordCombination("insufficient")
	r.RecordTask("done")
	r.RecordError("publish")
	r.RecordRobust(3)
	r.RecordLatency("optimize", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.combinations.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.combinations.WithLabelValues("insufficient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tasks.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("publish")))

	n, err := testutil.GatherAndCount(reg, "edgescan_robust_signatures", "edgescan_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
