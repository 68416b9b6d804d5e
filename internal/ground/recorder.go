package ground

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	// registers the "sqlite" driver
	_ "github.com/glebarez/go-sqlite"
)

var ErrRecorderClosed = errors.New("ground: recorder closed")

// Measurement is one rssi_ground_station report as stored by the recorder.
type Measurement struct {
	RunID         string    `json:"run_id"`
	ReceivedAt    time.Time `json:"received_at"`
	SensorID      int       `json:"sensor_id"`
	FromLatitude  float64   `json:"from_latitude"`
	FromLongitude float64   `json:"from_longitude"`
	FromValid     bool      `json:"from_valid"`
	ToLatitude    float64   `json:"to_latitude"`
	ToLongitude   float64   `json:"to_longitude"`
	ToValid       bool      `json:"to_valid"`
	RSSI          int       `json:"rssi"`
}

// MeasurementFromPacket reads a complete rssi_ground_station packet.
func MeasurementFromPacket(p *protocol.Packet) (Measurement, error) {
	if p.Specification() != schema.RSSIGroundStation {
		return Measurement{}, fmt.Errorf("ground: unexpected specification %q", p.Specification())
	}
	if missing := p.Missing(); len(missing) > 0 {
		return Measurement{}, &protocol.IncompleteError{Specification: schema.RSSIGroundStation, Missing: missing}
	}
	var m Measurement
	var err error
	read := func(field string, dst any) {
		if err != nil {
			return
		}
		switch d := dst.(type) {
		case *int:
			*d, err = p.Int(field)
		case *float64:
			*d, err = p.Float(field)
		case *bool:
			*d, err = p.Bool(field)
		}
	}
	read(schema.SensorID, &m.SensorID)
	read(schema.FromLatitude, &m.FromLatitude)
	read(schema.FromLongitude, &m.FromLongitude)
	read(schema.FromValid, &m.FromValid)
	read(schema.ToLatitude, &m.ToLatitude)
	read(schema.ToLongitude, &m.ToLongitude)
	read(schema.ToValid, &m.ToValid)
	read(schema.RSSI, &m.RSSI)
	return m, err
}

const createMeasurements = `CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	received_at INTEGER NOT NULL,
	sensor_id INTEGER NOT NULL,
	from_latitude REAL NOT NULL,
	from_longitude REAL NOT NULL,
	from_valid INTEGER NOT NULL,
	to_latitude REAL NOT NULL,
	to_longitude REAL NOT NULL,
	to_valid INTEGER NOT NULL,
	rssi INTEGER NOT NULL
)`

const insertMeasurement = `INSERT INTO measurements
	(run_id, received_at, sensor_id, from_latitude, from_longitude, from_valid,
	 to_latitude, to_longitude, to_valid, rssi)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Recorder persists ground station measurements to SQLite. Every recorder
// stamps its rows with its own run id.
type Recorder struct {
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
	runID  string
	now    func() time.Time
	closed bool
}

// OpenRecorder opens or creates the database at path.
func OpenRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ground: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createMeasurements); err != nil {
		db.Close()
		return nil, fmt.Errorf("ground: create table: %w", err)
	}
	stmt, err := db.Prepare(insertMeasurement)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ground: prepare insert: %w", err)
	}
	r := &Recorder{db: db, insert: stmt, runID: xid.New().String(), now: time.Now}
	log.Info().Str("path", path).Str("run_id", r.runID).Msg("ground.OpenRecorder")
	return r, nil
}

func (r *Recorder) RunID() string { return r.runID }

// Record stores one rssi_ground_station packet.
func (r *Recorder) Record(p *protocol.Packet) error {
	m, err := MeasurementFromPacket(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	_, err = r.insert.Exec(
		r.runID, r.now().UnixNano(), m.SensorID,
		m.FromLatitude, m.FromLongitude, m.FromValid,
		m.ToLatitude, m.ToLongitude, m.ToValid, m.RSSI,
	)
	return err
}

// MeasurementFunc adapts the recorder to the ground station node callback.
func (r *Recorder) MeasurementFunc() sensor.MeasurementFunc {
	return func(p *protocol.Packet) {
		if err := r.Record(p); err != nil {
			log.Warn().Err(err).Msg("ground.Recorder.Record")
		}
	}
}

func (r *Recorder) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&n)
	return n, err
}

// List returns the newest measurements first, at most limit rows.
func (r *Recorder) List(ctx context.Context, limit int) ([]Measurement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, received_at, sensor_id,
		from_latitude, from_longitude, from_valid, to_latitude, to_longitude, to_valid, rssi
		FROM measurements ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Measurement, 0)
	for rows.Next() {
		var m Measurement
		var at int64
		if err := rows.Scan(&m.RunID, &at, &m.SensorID,
			&m.FromLatitude, &m.FromLongitude, &m.FromValid,
			&m.ToLatitude, &m.ToLongitude, &m.ToValid, &m.RSSI); err != nil {
			return nil, err
		}
		m.ReceivedAt = time.Unix(0, at)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.insert.Close()
	return r.db.Close()
}
