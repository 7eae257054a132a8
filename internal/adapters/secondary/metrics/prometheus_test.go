package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOperationCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFollowOperation("follow", "success")
	m.RecordFollowOperation("follow", "success")
	m.RecordFollowOperation("unfollow", "error")
	m.RecordBlockOperation("block", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.followOps.WithLabelValues("follow", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.followOps.WithLabelValues("unfollow", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blockOps.WithLabelValues("block", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.blockOps.WithLabelValues("unblock", "success")))
}

func TestObserveHTTP(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveHTTP(http.MethodPost, "/api/v1/social/follow/:userId", http.StatusOK, 120*time.Millisecond)
	m.ObserveHTTP(http.MethodPost, "/api/v1/social/follow/:userId", http.StatusConflict, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpTotal.WithLabelValues("POST", "/api/v1/social/follow/:userId", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpTotal.WithLabelValues("POST", "/api/v1/social/follow/:userId", "409")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.httpDuration, "http_request_duration_seconds"))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
