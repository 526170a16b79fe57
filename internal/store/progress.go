// Package store persists step progress in Postgres. The completion state
// machine lives entirely in CommitStep's single conditional upsert so that
// concurrent submissions for the same (item, session, step) triple cannot
// race past the forward-only check.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// StepRecord is one row of step progress. A triple (ItemID, Session, Step)
// identifies the row; Data and Geometry are only populated on completed
// submissions.
type StepRecord struct {
	ItemID     string          `json:"itemId"`
	Session    string          `json:"session"`
	Step       string          `json:"step"`
	StepIndex  int             `json:"stepIndex"`
	Completed  bool            `json:"completed"`
	ImageID    string          `json:"imageId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Centroid   string          `json:"centroid,omitempty"`
	Client     json.RawMessage `json:"client,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	ModifiedAt time.Time       `json:"modifiedAt"`
}

type ProgressStore struct {
	db *sql.DB
}

func NewProgressStore(db *sql.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

func (s *ProgressStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the step_records table when it does not exist yet.
// Idempotent, safe to run on every startup.
func (s *ProgressStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS step_records (
			item_id     TEXT NOT NULL,
			session     TEXT NOT NULL,
			step        TEXT NOT NULL,
			step_index  INTEGER NOT NULL,
			completed   BOOLEAN NOT NULL DEFAULT FALSE,
			image_id    TEXT,
			data        JSONB,
			geometry    JSONB,
			centroid    TEXT,
			client      JSONB,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (item_id, session, step)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure step_records: %w", err)
	}
	return nil
}

// CommitStep writes a step submission through one conditional upsert:
//
//	Absent     -> row inserted as given
//	InProgress -> mutable fields overwritten (a later in-progress submission
//	              refreshes metadata, a completed one finishes the step)
//	Done       -> untouched, whatever the incoming payload says
//
// The returned bool reports whether the row was actually written.
func (s *ProgressStore) CommitStep(ctx context.Context, rec StepRecord) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO step_records (item_id, session, step, step_index, completed, image_id, data, geometry, centroid, client)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (item_id, session, step) DO UPDATE SET
			step_index  = EXCLUDED.step_index,
			completed   = EXCLUDED.completed,
			image_id    = EXCLUDED.image_id,
			data        = EXCLUDED.data,
			geometry    = EXCLUDED.geometry,
			centroid    = EXCLUDED.centroid,
			client      = EXCLUDED.client,
			modified_at = NOW()
		WHERE step_records.completed = FALSE
	`,
		rec.ItemID, rec.Session, rec.Step, rec.StepIndex, rec.Completed,
		nullString(rec.ImageID), nullJSON(rec.Data), nullJSON(rec.Geometry),
		nullString(rec.Centroid), nullJSON(rec.Client),
	)
	if err != nil {
		return false, fmt.Errorf("commit step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("commit step result: %w", err)
	}
	return affected > 0, nil
}

// LatestPerSession returns, for every session with at least one completed
// step, the completed row with the highest step index, most recently
// modified first. A limit of zero or less means unbounded.
func (s *ProgressStore) LatestPerSession(ctx context.Context, limit int) ([]StepRecord, error) {
	query := `
		SELECT item_id, session, step, step_index, completed, image_id, data, geometry, centroid, client, created_at, modified_at
		FROM (
			SELECT DISTINCT ON (session) *
			FROM step_records
			WHERE completed
			ORDER BY session, step_index DESC, modified_at DESC
		) latest
		ORDER BY modified_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("latest per session: %w", err)
	}
	defer rows.Close()

	records := make([]StepRecord, 0)
	for rows.Next() {
		var rec StepRecord
		var imageID, centroid sql.NullString
		if err := rows.Scan(
			&rec.ItemID, &rec.Session, &rec.Step, &rec.StepIndex, &rec.Completed,
			&imageID, &rec.Data, &rec.Geometry, &centroid, &rec.Client,
			&rec.CreatedAt, &rec.ModifiedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step record: %w", err)
		}
		rec.ImageID = imageID.String
		rec.Centroid = centroid.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step records: %w", err)
	}
	return records, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
