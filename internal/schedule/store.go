package schedule

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the singleton schedule config. The table holds exactly one
// row (id = 1, enforced by the schema) and updates replace the whole row so
// readers never observe a partially applied config.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context) (Config, error) {
	query := `SELECT morning_time, evening_time, random_delay_max, skip_weekends, skip_holidays, updated_at
	          FROM schedule_config WHERE id = 1`

	var cfg Config
	err := s.pool.QueryRow(ctx, query).Scan(
		&cfg.MorningTime, &cfg.EveningTime, &cfg.RandomDelayMax,
		&cfg.SkipWeekends, &cfg.SkipHolidays, &cfg.UpdatedAt)
	if err != nil {
		return Config{}, fmt.Errorf("get schedule config: %w", err)
	}
	return cfg, nil
}

func (s *Store) Put(ctx context.Context, cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	query := `UPDATE schedule_config SET
	          morning_time = $1, evening_time = $2, random_delay_max = $3,
	          skip_weekends = $4, skip_holidays = $5, updated_at = NOW()
	          WHERE id = 1
	          RETURNING updated_at`

	err := s.pool.QueryRow(ctx, query,
		cfg.MorningTime, cfg.EveningTime, cfg.RandomDelayMax,
		cfg.SkipWeekends, cfg.SkipHolidays).Scan(&cfg.UpdatedAt)
	if err != nil {
		return Config{}, fmt.Errorf("put schedule config: %w", err)
	}
	return cfg, nil
}
