package observability

import (
	"testing"
	"time"

	"github.com/danmuck/rfsensor/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("vehicle-1", "GET", "/health", 200, 12*time.Millisecond)
	RecordSlot("vehicle-1")
	RecordSync("vehicle-1", 40*time.Millisecond)
	RecordPacketDropped("vehicle-1", "relay_full")
	RecordUploadRetry(1, "add")
	RecordUpload(1, time.Second, true)
}

func TestPacketCountersByLabel(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(packetsSent.WithLabelValues("vehicle-7", "waypoint_ack"))
	RecordPacketSent("vehicle-7", "waypoint_ack")
	RecordPacketSent("vehicle-7", "waypoint_ack")
	after := testutil.ToFloat64(packetsSent.WithLabelValues("vehicle-7", "waypoint_ack"))
	if after-before != 2 {
		t.Fatalf("expected 2 recorded sends, got %v", after-before)
	}
	RecordPacketReceived("vehicle-7", "rssi_broadcast")
	if got := testutil.ToFloat64(packetsReceived.WithLabelValues("vehicle-7", "rssi_broadcast")); got < 1 {
		t.Fatalf("receive counter not incremented: %v", got)
	}
}

func TestMissionAckSetsNextIndexGauge(t *testing.T) {
	testlog.Start(t)
	RecordMissionAck("vehicle-9", 4, true)
	if got := testutil.ToFloat64(missionNextIndex.WithLabelValues("vehicle-9")); got != 4 {
		t.Fatalf("next_index gauge %v want 4", got)
	}
}
