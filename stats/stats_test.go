package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAttachDetachMoveLiveGauge(t *testing.T) {
	s := NewStats("drv_test_attach_detach")

	s.Attached()
	s.Attached()
	assert.Equal(t, float64(2), testutil.ToFloat64(s.ProxiesLive))

	s.Detached()
	assert.Equal(t, float64(1), testutil.ToFloat64(s.ProxiesLive))

	s.AttachFailed()
	assert.Equal(t, float64(1), testutil.ToFloat64(s.ProxiesFailed.WithLabelValues()))
}

func TestObserveProcessCountsErrors(t *testing.T) {
	s := NewStats("drv_test_observe_process")

	s.ObserveProcess(time.Now(), nil)
	assert.Equal(t, float64(0), testutil.ToFloat64(s.ProcessErrors.WithLabelValues()))

	s.ObserveProcess(time.Now(), assert.AnError)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.ProcessErrors.WithLabelValues()))
}

func TestSetLiveIDs(t *testing.T) {
	s := NewStats("drv_test_live_ids")

	s.SetLiveIDs(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(s.LiveIDs))
}
