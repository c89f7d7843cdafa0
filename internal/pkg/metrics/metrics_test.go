package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMustRegisterMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegisterMetrics()
		MustRegisterMetrics()
	})
}

func TestCountersRecord(t *testing.T) {
	before := testutil.ToFloat64(CacheLookups.WithLabelValues("prices", "hit"))
	CacheLookups.WithLabelValues("prices", "hit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CacheLookups.WithLabelValues("prices", "hit")))

	ObserveLimiterWait("moralis", 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(LimiterWait))
}
