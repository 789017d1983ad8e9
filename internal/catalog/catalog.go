// Package catalog persists raw trial tables in a local sqlite database so a
// batch can be re-run without re-parsing the exporter CSVs. Derived series
// are never stored; they are recomputed on every run.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/trial"
	"gonum.org/v1/gonum/spatial/r3"

	_ "modernc.org/sqlite"
)

// ErrTrialNotFound is returned when a named trial is not in the catalogue.
var ErrTrialNotFound = errors.New("trial not found in catalogue")

// Catalog is a sqlite-backed store of raw trial tables.
type Catalog struct {
	*sql.DB
}

// OpenDB opens the database without touching its schema.
func OpenDB(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// a single connection keeps the per-connection pragmas in force
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db}, nil
}

// Open opens the database and applies any pending migrations.
func Open(path string) (*Catalog, error) {
	c, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := c.MigrateUp(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// TrialInfo summarises one catalogued trial.
type TrialInfo struct {
	Name       string
	Source     string
	ImportedAt time.Time
	Markers    int
	Frames     int
	Events     int
	HeartRate  int
}

// ImportTrial stores tables under name, replacing any earlier import of the
// same trial. Missing marker positions are not stored.
func (c *Catalog) ImportTrial(ctx context.Context, name, source string, tables *trial.Tables) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trials WHERE name = ?`, name); err != nil {
		return fmt.Errorf("replace trial %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO trials (name, source, imported_unix_nanos) VALUES (?, ?, ?)`,
		name, source, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert trial %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	markerIdx := make(map[string]int, len(tables.Markers))
	if err := execEach(ctx, tx, `INSERT INTO trial_markers (trial_id, marker_idx, name) VALUES (?, ?, ?)`,
		len(tables.Markers), func(i int) []any {
			markerIdx[tables.Markers[i]] = i
			return []any{id, i, tables.Markers[i]}
		}); err != nil {
		return fmt.Errorf("insert markers: %w", err)
	}

	if err := execEach(ctx, tx, `INSERT INTO trial_frames (trial_id, frame_idx, time_s) VALUES (?, ?, ?)`,
		len(tables.Frames), func(i int) []any {
			return []any{id, i, tables.Frames[i].Time}
		}); err != nil {
		return fmt.Errorf("insert frames: %w", err)
	}

	posStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trial_positions (trial_id, frame_idx, marker_idx, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer posStmt.Close()
	for f, fr := range tables.Frames {
		for name, p := range fr.Positions {
			if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
				continue
			}
			m, ok := markerIdx[name]
			if !ok {
				return fmt.Errorf("frame %d: unknown marker %q", f, name)
			}
			if _, err := posStmt.ExecContext(ctx, id, f, m, p.X, p.Y, p.Z); err != nil {
				return fmt.Errorf("insert position frame %d marker %s: %w", f, name, err)
			}
		}
	}

	if err := execEach(ctx, tx,
		`INSERT INTO trial_events (trial_id, record, subject, behavior, kind, time_s) VALUES (?, ?, ?, ?, ?, ?)`,
		len(tables.Events), func(i int) []any {
			ev := tables.Events[i]
			return []any{id, ev.Record, ev.Subject, ev.Behavior, string(ev.Kind), ev.Time}
		}); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}

	if err := execEach(ctx, tx,
		`INSERT INTO trial_heart_rate (trial_id, sample_idx, subject, time_s, bpm) VALUES (?, ?, ?, ?, ?)`,
		len(tables.HeartRate), func(i int) []any {
			s := tables.HeartRate[i]
			return []any{id, i, s.Subject, s.Time, s.BPM}
		}); err != nil {
		return fmt.Errorf("insert heart rate: %w", err)
	}

	if err := insertCaregivers(ctx, tx, id, tables.Caregivers, markerIdx); err != nil {
		return fmt.Errorf("insert caregivers: %w", err)
	}

	return tx.Commit()
}

func insertCaregivers(ctx context.Context, tx *sql.Tx, id int64, caregivers []trial.Caregiver, markerIdx map[string]int) error {
	if err := execEach(ctx, tx, `INSERT INTO trial_caregivers (trial_id, caregiver_idx, subject) VALUES (?, ?, ?)`,
		len(caregivers), func(i int) []any {
			return []any{id, i, caregivers[i].Subject}
		}); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trial_caregiver_markers (trial_id, caregiver_idx, marker_idx) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, cg := range caregivers {
		for _, name := range cg.Markers {
			m, ok := markerIdx[name]
			if !ok {
				return fmt.Errorf("caregiver %s: unknown marker %q", cg.Subject, name)
			}
			if _, err := stmt.ExecContext(ctx, id, i, m); err != nil {
				return fmt.Errorf("caregiver %s marker %s: %w", cg.Subject, name, err)
			}
		}
	}
	return nil
}

func execEach(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) trialID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.QueryRowContext(ctx, `SELECT trial_id FROM trials WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrTrialNotFound, name)
	}
	return id, err
}

// LoadTables reads back the tables stored for name.
func (c *Catalog) LoadTables(ctx context.Context, name string) (*trial.Tables, error) {
	id, err := c.trialID(ctx, name)
	if err != nil {
		return nil, err
	}
	tables := &trial.Tables{}

	rows, err := c.QueryContext(ctx, `SELECT name FROM trial_markers WHERE trial_id = ? ORDER BY marker_idx`, id)
	if err != nil {
		return nil, err
	}
	err = scanAll(rows, func() error {
		var m string
		if err := rows.Scan(&m); err != nil {
			return err
		}
		tables.Markers = append(tables.Markers, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load markers: %w", err)
	}

	rows, err = c.QueryContext(ctx, `SELECT time_s FROM trial_frames WHERE trial_id = ? ORDER BY frame_idx`, id)
	if err != nil {
		return nil, err
	}
	err = scanAll(rows, func() error {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fr := mocap.Frame{Time: t, Positions: make(map[string]r3.Vec, len(tables.Markers))}
		for _, m := range tables.Markers {
			fr.Positions[m] = r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
		}
		tables.Frames = append(tables.Frames, fr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load frames: %w", err)
	}

	rows, err = c.QueryContext(ctx,
		`SELECT frame_idx, marker_idx, x, y, z FROM trial_positions WHERE trial_id = ?`, id)
	if err != nil {
		return nil, err
	}
	err = scanAll(rows, func() error {
		var f, m int
		var p r3.Vec
		if err := rows.Scan(&f, &m, &p.X, &p.Y, &p.Z); err != nil {
			return err
		}
		if f < 0 || f >= len(tables.Frames) || m < 0 || m >= len(tables.Markers) {
			return fmt.Errorf("position (%d, %d) outside stored grid", f, m)
		}
		tables.Frames[f].Positions[tables.Markers[m]] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	rows, err = c.QueryContext(ctx,
		`SELECT record, subject, behavior, kind, time_s FROM trial_events WHERE trial_id = ? ORDER BY record`, id)
	if err != nil {
		return nil, err
	}
	err = scanAll(rows, func() error {
		var ev behavior.Event
		var kind string
		if err := rows.Scan(&ev.Record, &ev.Subject, &ev.Behavior, &kind, &ev.Time); err != nil {
			return err
		}
		ev.Kind = behavior.Kind(kind)
		tables.Events = append(tables.Events, ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	rows, err = c.QueryContext(ctx,
		`SELECT subject, time_s, bpm FROM trial_heart_rate WHERE trial_id = ? ORDER BY sample_idx`, id)
	if err != nil {
		return nil, err
	}
	err = scanAll(rows, func() error {
		var s heartrate.Sample
		if err := rows.Scan(&s.Subject, &s.Time, &s.BPM); err != nil {
			return err
		}
		tables.HeartRate = append(tables.HeartRate, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load heart rate: %w", err)
	}

	rows, err = c.QueryContext(ctx, `
		SELECT c.subject, m.marker_idx
		FROM trial_caregivers c
		LEFT JOIN trial_caregiver_markers m ON m.trial_id = c.trial_id AND m.caregiver_idx = c.caregiver_idx
		WHERE c.trial_id = ?
		ORDER BY c.caregiver_idx, m.marker_idx`, id)
	if err != nil {
		return nil, err
	}
	err = scanAll(rows, func() error {
		var subject string
		var m sql.NullInt64
		if err := rows.Scan(&subject, &m); err != nil {
			return err
		}
		n := len(tables.Caregivers)
		if n == 0 || tables.Caregivers[n-1].Subject != subject {
			tables.Caregivers = append(tables.Caregivers, trial.Caregiver{Subject: subject})
			n++
		}
		if m.Valid {
			if m.Int64 < 0 || int(m.Int64) >= len(tables.Markers) {
				return fmt.Errorf("caregiver %s marker %d outside stored markers", subject, m.Int64)
			}
			tables.Caregivers[n-1].Markers = append(tables.Caregivers[n-1].Markers, tables.Markers[m.Int64])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load caregivers: %w", err)
	}

	return tables, nil
}

func scanAll(rows *sql.Rows, scan func() error) error {
	defer rows.Close()
	for rows.Next() {
		if err := scan(); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListTrials returns every catalogued trial ordered by name.
func (c *Catalog) ListTrials(ctx context.Context) ([]TrialInfo, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT t.name, t.source, t.imported_unix_nanos,
			(SELECT COUNT(*) FROM trial_markers m WHERE m.trial_id = t.trial_id),
			(SELECT COUNT(*) FROM trial_frames f WHERE f.trial_id = t.trial_id),
			(SELECT COUNT(*) FROM trial_events e WHERE e.trial_id = t.trial_id),
			(SELECT COUNT(*) FROM trial_heart_rate h WHERE h.trial_id = t.trial_id)
		FROM trials t
		ORDER BY t.name`)
	if err != nil {
		return nil, err
	}
	var out []TrialInfo
	err = scanAll(rows, func() error {
		var info TrialInfo
		var nanos int64
		if err := rows.Scan(&info.Name, &info.Source, &nanos,
			&info.Markers, &info.Frames, &info.Events, &info.HeartRate); err != nil {
			return err
		}
		info.ImportedAt = time.Unix(0, nanos)
		out = append(out, info)
		return nil
	})
	return out, err
}

// DeleteTrial removes a trial and all of its tables.
func (c *Catalog) DeleteTrial(ctx context.Context, name string) error {
	res, err := c.ExecContext(ctx, `DELETE FROM trials WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTrialNotFound, name)
	}
	return nil
}
