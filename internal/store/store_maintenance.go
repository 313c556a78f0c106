package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"turnstile/internal/schedule"
)

// StatsForDate aggregates one day of attendance for dashboards and the CLI.
func (s *Store) StatsForDate(ctx context.Context, date string) (DayStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = ensureContext(ctx)

	stats := DayStats{Date: date}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM staff WHERE active = 1`)
	if err := row.Scan(&stats.StaffTotal); err != nil {
		return DayStats{}, fmt.Errorf("count staff: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, check_in_time, check_out_time
         FROM staff_attendance WHERE date = ?`, date)
	if err != nil {
		return DayStats{}, fmt.Errorf("query attendance stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, checkIn, checkOut *string
		if err := rows.Scan(&status, &checkIn, &checkOut); err != nil {
			return DayStats{}, err
		}
		if checkIn != nil && *checkIn != "" {
			stats.CheckedIn++
		}
		if checkOut != nil && *checkOut != "" {
			stats.CheckedOut++
		}
		if status == nil {
			continue
		}
		switch *status {
		case schedule.StatusLate:
			stats.Late++
		case schedule.StatusOnTime:
			stats.OnTime++
		}
	}
	if err := rows.Err(); err != nil {
		return DayStats{}, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(CASE WHEN is_processed = 0 THEN 1 ELSE 0 END), 0)
         FROM unknown_entries WHERE date = ?`, date)
	if err := row.Scan(&stats.Unknowns, &stats.Unprocessed); err != nil {
		return DayStats{}, fmt.Errorf("count unknown entries: %w", err)
	}
	return stats, nil
}

// CheckHealth returns diagnostic information about the attendance database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = ensureContext(ctx)

	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("attendance database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat attendance database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("attendance database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("attendance database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping attendance database: %w", err)
	}
	health.DatabaseReadable = true

	if versions, err := s.appliedMigrationsLocked(connCtx); err == nil && len(versions) > 0 {
		health.SchemaVersion = versions[len(versions)-1]
	}

	expected := []string{"staff", "staff_attendance", "staff_checkins", "unknown_entries"}
	rows, err := s.db.QueryContext(connCtx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (`+makePlaceholders(len(expected))+`)`,
		anySlice(expected)...)
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	present := make(map[string]struct{}, len(expected))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		present[name] = struct{}{}
		health.TablesPresent = append(health.TablesPresent, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}
	rows.Close()
	for _, name := range expected {
		if _, ok := present[name]; !ok {
			health.MissingTables = append(health.MissingTables, name)
		}
	}

	if _, ok := present["staff"]; ok {
		row := s.db.QueryRowContext(connCtx, `SELECT COUNT(1) FROM staff WHERE active = 1`)
		if err := row.Scan(&health.StaffCount); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count staff: %w", err)
		}
	}
	if _, ok := present["staff_attendance"]; ok {
		row := s.db.QueryRowContext(connCtx, `SELECT COUNT(1) FROM staff_attendance`)
		if err := row.Scan(&health.AttendanceCount); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count attendance: %w", err)
		}
	}
	if _, ok := present["unknown_entries"]; ok {
		row := s.db.QueryRowContext(connCtx, `SELECT COUNT(1) FROM unknown_entries`)
		if err := row.Scan(&health.UnknownCount); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count unknown entries: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

func (s *Store) appliedMigrationsLocked(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
