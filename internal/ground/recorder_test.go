package ground_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/rfsensor/internal/ground"
	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/danmuck/rfsensor/internal/testutil/testlog"
)

func measurementPacket(sensorID, rssi int) *protocol.Packet {
	return protocol.MustPacket(schema.RSSIGroundStation).
		MustSet(schema.SensorID, sensorID).
		MustSet(schema.FromLatitude, 1.5).
		MustSet(schema.FromLongitude, 2.5).
		MustSet(schema.FromValid, true).
		MustSet(schema.ToLatitude, 3.5).
		MustSet(schema.ToLongitude, 4.5).
		MustSet(schema.ToValid, false).
		MustSet(schema.RSSI, rssi)
}

func openRecorder(t *testing.T, path string) *ground.Recorder {
	t.Helper()
	r, err := ground.OpenRecorder(path)
	if err != nil {
		t.Fatalf("open recorder: %v", err)
	}
	return r
}

func count(t *testing.T, r *ground.Recorder) int {
	t.Helper()
	n, err := r.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRecorderStoresMeasurements(t *testing.T) {
	testlog.Start(t)
	r := openRecorder(t, filepath.Join(t.TempDir(), "rf.db"))
	defer r.Close()

	if err := r.Record(measurementPacket(1, -40)); err != nil {
		t.Fatalf("record: %v", err)
	}
	r.MeasurementFunc()(measurementPacket(2, -60))

	if n := count(t, r); n != 2 {
		t.Fatalf("count %d want 2", n)
	}

	ctx := context.Background()
	rows, err := r.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	newest, oldest := rows[0], rows[1]
	if newest.SensorID != 2 || newest.RSSI != -60 || newest.RunID != r.RunID() {
		t.Fatalf("unexpected newest row: %+v", newest)
	}
	if oldest.FromLatitude != 1.5 || !oldest.FromValid || oldest.ToValid || oldest.ReceivedAt.IsZero() {
		t.Fatalf("unexpected oldest row: %+v", oldest)
	}

	rows, err = r.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("limit ignored: %d rows", len(rows))
	}
}

func TestRecorderRejectsIncompletePackets(t *testing.T) {
	testlog.Start(t)
	r := openRecorder(t, filepath.Join(t.TempDir(), "rf.db"))
	defer r.Close()

	partial := protocol.MustPacket(schema.RSSIGroundStation).MustSet(schema.SensorID, 1)
	if err := r.Record(partial); !errors.Is(err, protocol.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if err := r.Record(protocol.MustPacket(schema.WaypointClear).MustSet(schema.ToID, 1)); err == nil {
		t.Fatalf("expected an error for a non-measurement packet")
	}
	if n := count(t, r); n != 0 {
		t.Fatalf("rejected packets were stored: %d", n)
	}
}

func TestRecorderReopensExistingDatabase(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "rf.db")
	r := openRecorder(t, path)
	if err := r.Record(measurementPacket(1, -40)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Record(measurementPacket(1, -40)); !errors.Is(err, ground.ErrRecorderClosed) {
		t.Fatalf("expected ErrRecorderClosed, got %v", err)
	}

	again := openRecorder(t, path)
	defer again.Close()
	if again.RunID() == r.RunID() {
		t.Fatalf("reopen must start a new run id")
	}
	if n := count(t, again); n != 1 {
		t.Fatalf("count after reopen %d want 1", n)
	}
}
