// Package devices persists the device status samples the agent reports in
// full status messages, so connectivity and battery history survive server
// restarts even though the live projection does not.
package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Sample struct {
	ID              int64
	BatteryLevel    int
	BatteryCharging bool
	WifiSSID        string
	WifiIP          string
	ScreenOn        bool
	ADBConnected    bool
	RecordedAt      time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, sample Sample) error {
	query := `INSERT INTO device_status_samples
	          (battery_level, battery_charging, wifi_ssid, wifi_ip, screen_on, adb_connected)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		sample.BatteryLevel, sample.BatteryCharging, sample.WifiSSID,
		sample.WifiIP, sample.ScreenOn, sample.ADBConnected)
	if err != nil {
		return fmt.Errorf("insert device status sample: %w", err)
	}
	return nil
}

// Latest returns up to limit samples, newest first.
func (s *Store) Latest(ctx context.Context, limit int) ([]Sample, error) {
	query := `SELECT id, battery_level, battery_charging, wifi_ssid, wifi_ip, screen_on, adb_connected, recorded_at
	          FROM device_status_samples
	          ORDER BY recorded_at DESC, id DESC
	          LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query device status samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.ID, &sm.BatteryLevel, &sm.BatteryCharging,
			&sm.WifiSSID, &sm.WifiIP, &sm.ScreenOn, &sm.ADBConnected, &sm.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan device status sample: %w", err)
		}
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device status samples: %w", err)
	}
	return samples, nil
}
