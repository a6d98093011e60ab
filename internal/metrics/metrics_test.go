package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dkeye/voicegate/internal/app/sfu"
)

var _ sfu.Recorder = (*PrometheusCollector)(nil)

func TestCollectorRecordsChannelEvents(t *testing.T) {
	c := NewPrometheusCollector()

	c.StateChanged(sfu.StateConnected)
	c.ReconnectScheduled(1, time.Second)
	c.ReconnectScheduled(1, time.Second)
	c.RoomRegistered()
	c.PendingRooms(3)
	c.JoinRequest("granted")

	if got := testutil.ToFloat64(c.channelState); got != 2 {
		t.Errorf("state gauge = %v", got)
	}
	if got := testutil.ToFloat64(c.reconnects.WithLabelValues("1")); got != 2 {
		t.Errorf("reconnects = %v", got)
	}
	if got := testutil.ToFloat64(c.pendingRooms); got != 3 {
		t.Errorf("pending = %v", got)
	}
	if got := testutil.ToFloat64(c.joinRequests.WithLabelValues("granted")); got != 1 {
		t.Errorf("join requests = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewPrometheusCollector()
	c.RoomRegistered()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "voice_sfu_room_registrations_total 1") {
		t.Fatalf("metric missing from output:\n%s", body)
	}
}
