package checkins

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists check-in records in Postgres. Records are append-only.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	query := `INSERT INTO checkin_records
	          (kind, triggered_at, executed_at, success, "trigger", message, artifact_ref)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, query,
		string(rec.Kind), rec.TriggeredAt, rec.ExecutedAt, rec.Success,
		string(rec.Trigger), rec.Message, rec.ArtifactRef,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("append checkin record: %w", err)
	}
	return rec, nil
}

// Between returns records executed in [from, to), newest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]Record, error) {
	query := `SELECT id, kind, triggered_at, executed_at, success, "trigger", message, artifact_ref, created_at
	          FROM checkin_records
	          WHERE executed_at >= $1 AND executed_at < $2
	          ORDER BY executed_at DESC`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query checkin records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var kind, trigger string
		if err := rows.Scan(&rec.ID, &kind, &rec.TriggeredAt, &rec.ExecutedAt,
			&rec.Success, &trigger, &rec.Message, &rec.ArtifactRef, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkin record: %w", err)
		}
		rec.Kind = ActionKind(kind)
		rec.Trigger = Trigger(trigger)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkin records: %w", err)
	}
	return records, nil
}

// Day returns the records executed on the calendar day containing t.
func (s *Store) Day(ctx context.Context, t time.Time, loc *time.Location) ([]Record, error) {
	from, to := DayBounds(t, loc)
	return s.Between(ctx, from, to)
}

// DayBounds returns the [start, end) interval of the calendar day containing
// t in the given location.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// TodayFromRecords derives the today view from a day's records. Records are
// folded oldest first so the view reflects the latest state of each slot.
func TodayFromRecords(records []Record) Today {
	var today Today
	for i := len(records) - 1; i >= 0; i-- {
		today.Apply(records[i])
	}
	return today
}
