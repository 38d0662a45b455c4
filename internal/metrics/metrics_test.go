package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitPrometheusIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitPrometheus()
		InitPrometheus()
	})
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ReferralRedemptions.WithLabelValues("success"))
	ReferralRedemptions.WithLabelValues("success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ReferralRedemptions.WithLabelValues("success")))
}
