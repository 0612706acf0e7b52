// Package recorder samples CarState snapshots and identification results into
// a SQLite file for offline review.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Raudi1/opendbc/carstate"
	"github.com/Raudi1/opendbc/platform"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		platform TEXT,
		started_ns INTEGER
	);
	CREATE TABLE IF NOT EXISTS identifications (
		session_id TEXT,
		vin TEXT,
		method TEXT,
		candidates TEXT,
		error TEXT,
		recorded_ns INTEGER,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		session_id TEXT,
		recorded_ns INTEGER,
		v_ego_raw DOUBLE,
		v_ego DOUBLE,
		a_ego DOUBLE,
		standstill INTEGER,
		gas DOUBLE,
		gas_pressed INTEGER,
		brake_pressed INTEGER,
		steering_angle_deg DOUBLE,
		steering_rate_deg DOUBLE,
		steering_torque DOUBLE,
		steering_pressed INTEGER,
		steer_fault TEXT,
		cruise_enabled INTEGER,
		gear TEXT,
		left_blinker INTEGER,
		right_blinker INTEGER,
		seatbelt_unlatched INTEGER,
		stock_aeb INTEGER,
		stale TEXT,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, recorded_ns);
`

// Recorder writes one session's rows. Calls are serialized by database/sql;
// the loop goroutine is the only writer in practice.
type Recorder struct {
	db      *sql.DB
	session string
}

// Open creates or reuses the database at path and starts a new session.
func Open(ctx context.Context, path, platformName string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	r := &Recorder{db: db, session: uuid.NewString()}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO sessions (session_id, platform, started_ns) VALUES (?, ?, ?)",
		r.session, platformName, time.Now().UnixNano()); err != nil {
		db.Close()
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return r, nil
}

func (r *Recorder) Session() string { return r.session }

func (r *Recorder) Close() error { return r.db.Close() }

func (r *Recorder) RecordIdentification(ctx context.Context, vin string, res platform.Result, at time.Time) error {
	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO identifications (session_id, vin, method, candidates, error, recorded_ns) VALUES (?, ?, ?, ?, ?, ?)",
		r.session, vin, res.Method.String(), strings.Join(res.Names(), ","), errText, at.UnixNano())
	if err != nil {
		return fmt.Errorf("insert identification: %w", err)
	}
	return nil
}

func (r *Recorder) RecordSnapshot(ctx context.Context, at time.Time, cs carstate.CarState, stale []string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			session_id, recorded_ns, v_ego_raw, v_ego, a_ego, standstill,
			gas, gas_pressed, brake_pressed,
			steering_angle_deg, steering_rate_deg, steering_torque, steering_pressed, steer_fault,
			cruise_enabled, gear, left_blinker, right_blinker, seatbelt_unlatched, stock_aeb, stale
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.session, at.UnixNano(), cs.VEgoRaw, cs.VEgo, cs.AEgo, b2i(cs.Standstill),
		cs.Gas, b2i(cs.GasPressed), b2i(cs.BrakePressed),
		cs.SteeringAngleDeg, cs.SteeringRateDeg, cs.SteeringTorque, b2i(cs.SteeringPressed), cs.SteerFault.String(),
		b2i(cs.CruiseState.Enabled), cs.GearShifter.String(), b2i(cs.LeftBlinker), b2i(cs.RightBlinker),
		b2i(cs.SeatbeltUnlatched), b2i(cs.StockAEB), strings.Join(stale, ","))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// SnapshotRow is the subset of a stored snapshot read back by tools.
type SnapshotRow struct {
	At           time.Time
	VEgo         float64
	SteerFault   string
	Gear         string
	BrakePressed bool
	Stale        []string
}

// Snapshots returns a session's rows in recording order.
func (r *Recorder) Snapshots(ctx context.Context, session string) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT recorded_ns, v_ego, steer_fault, gear, brake_pressed, stale FROM snapshots WHERE session_id = ? ORDER BY recorded_ns, rowid",
		session)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			ns    int64
			brake int64
			stale string
			row   SnapshotRow
		)
		if err := rows.Scan(&ns, &row.VEgo, &row.SteerFault, &row.Gear, &brake, &stale); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		row.At = time.Unix(0, ns)
		row.BrakePressed = brake != 0
		if stale != "" {
			row.Stale = strings.Split(stale, ",")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
