package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"turnstile/internal/services"
)

const defaultUnknownLimit = 100

const unknownColumns = "id, track_id, entry_type, date, time, detection_time, face_bbox, person_bbox, face_detected, face_confidence, recognition_confidence, reason, system_mode, is_processed"

// SaveUnknownEntry persists an unknown-person sighting. While an unprocessed
// row exists for the same (track, date) the new sighting refreshes it in
// place; once the existing row was processed a fresh row is inserted. The
// returned flag reports whether an existing row was updated.
func (s *Store) SaveUnknownEntry(ctx context.Context, entry *UnknownEntry) (int64, bool, error) {
	if entry == nil {
		return 0, false, errors.New("unknown entry is nil")
	}
	if len(entry.Image) == 0 {
		return 0, false, services.Wrap(services.ErrValidation, "store", "save unknown entry", "full body image is required", nil)
	}
	if _, ok := ParseEntryType(string(entry.EntryType)); !ok {
		return 0, false, services.Wrap(services.ErrValidation, "store", "save unknown entry",
			fmt.Sprintf("unknown entry type %q", entry.EntryType), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		id      int64
		updated bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM unknown_entries
             WHERE track_id = ? AND date = ? AND is_processed = 0`,
			entry.TrackID, entry.Date)
		switch err := row.Scan(&existingID); {
		case err == nil:
			updated = true
			id = existingID
			if _, err := tx.ExecContext(ctx,
				`UPDATE unknown_entries
                 SET detection_time = ?, time = ?, full_body_image = ?,
                     face_bbox = ?, person_bbox = ?, face_detected = ?,
                     face_confidence = ?, recognition_confidence = ?,
                     reason = ?, system_mode = ?, entry_type = ?
                 WHERE id = ?`,
				entry.DetectionTime.UTC().Format(time.RFC3339Nano),
				entry.Time,
				entry.Image,
				marshalBBox(entry.FaceBBox),
				marshalBBox(entry.PersonBBox),
				boolToInt(entry.FaceDetected),
				entry.FaceConfidence,
				entry.RecognitionConfidence,
				nullableString(entry.Reason),
				nullableString(entry.Mode),
				string(entry.EntryType),
				existingID); err != nil {
				return fmt.Errorf("update unknown entry: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO unknown_entries
                 (track_id, entry_type, detection_time, date, time, full_body_image,
                  face_bbox, person_bbox, face_detected, face_confidence,
                  recognition_confidence, reason, system_mode)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				entry.TrackID,
				string(entry.EntryType),
				entry.DetectionTime.UTC().Format(time.RFC3339Nano),
				entry.Date,
				entry.Time,
				entry.Image,
				marshalBBox(entry.FaceBBox),
				marshalBBox(entry.PersonBBox),
				boolToInt(entry.FaceDetected),
				entry.FaceConfidence,
				entry.RecognitionConfidence,
				nullableString(entry.Reason),
				nullableString(entry.Mode))
			if err != nil {
				return fmt.Errorf("insert unknown entry: %w", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
		default:
			return fmt.Errorf("query unknown entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	entry.ID = id
	return id, updated, nil
}

// UnknownEntries lists sightings without their image payloads, newest first.
func (s *Store) UnknownEntries(ctx context.Context, q UnknownQuery) ([]UnknownEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultUnknownLimit
	}

	query := `SELECT ` + unknownColumns + ` FROM unknown_entries`
	var (
		clauses []string
		args    []any
	)
	if q.Date != "" {
		clauses = append(clauses, "date = ?")
		args = append(args, q.Date)
	}
	if q.OnlyUnprocessed {
		clauses = append(clauses, "is_processed = 0")
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY detection_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unknown entries: %w", err)
	}
	defer rows.Close()

	var entries []UnknownEntry
	for rows.Next() {
		entry, err := scanUnknownEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// UnknownEntryByID fetches one sighting without its image payload. Returns
// nil when no row matches.
func (s *Store) UnknownEntryByID(ctx context.Context, id int64) (*UnknownEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+unknownColumns+` FROM unknown_entries WHERE id = ?`, id)
	entry, err := scanUnknownEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unknown entry: %w", err)
	}
	return entry, nil
}

// UnknownEntryImage returns the stored full-body JPEG for a sighting.
func (s *Store) UnknownEntryImage(ctx context.Context, id int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var image []byte
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT full_body_image FROM unknown_entries WHERE id = ?`, id)
	if err := row.Scan(&image); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "store", "unknown entry image",
				fmt.Sprintf("entry %d not found", id), nil)
		}
		return nil, fmt.Errorf("unknown entry image: %w", err)
	}
	return image, nil
}

// MarkUnknownProcessed flags a sighting as reviewed. Subsequent sightings of
// the same track and date insert fresh rows.
func (s *Store) MarkUnknownProcessed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE unknown_entries SET is_processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark unknown processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "mark unknown processed",
			fmt.Sprintf("entry %d not found", id), nil)
	}
	return nil
}

// DeleteUnknownEntry removes a sighting and its stored image.
func (s *Store) DeleteUnknownEntry(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execWithRetry(ensureContext(ctx),
		`DELETE FROM unknown_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete unknown entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "delete unknown entry",
			fmt.Sprintf("entry %d not found", id), nil)
	}
	return nil
}

// UnknownStatsForDate aggregates one day of sightings by entry type.
func (s *Store) UnknownStatsForDate(ctx context.Context, date string) (UnknownStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := UnknownStats{Date: date, ByType: make(map[EntryType]int)}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT entry_type, is_processed, COUNT(1)
         FROM unknown_entries WHERE date = ?
         GROUP BY entry_type, is_processed`, date)
	if err != nil {
		return UnknownStats{}, fmt.Errorf("query unknown stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entryType string
			processed int
			count     int
		)
		if err := rows.Scan(&entryType, &processed, &count); err != nil {
			return UnknownStats{}, err
		}
		stats.Total += count
		if processed == 0 {
			stats.Unprocessed += count
		}
		stats.ByType[EntryType(entryType)] += count
	}
	return stats, rows.Err()
}

// PurgeProcessedBefore deletes processed sightings dated strictly before the
// cutoff and returns how many were removed.
func (s *Store) PurgeProcessedBefore(ctx context.Context, cutoffDate string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execWithRetry(ensureContext(ctx),
		`DELETE FROM unknown_entries WHERE is_processed = 1 AND date < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("purge unknown entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func scanUnknownEntry(scanner interface{ Scan(dest ...any) error }) (*UnknownEntry, error) {
	var (
		entry        UnknownEntry
		trackID      sql.NullString
		detectionRaw sql.NullString
		faceBBox     sql.NullString
		personBBox   sql.NullString
		faceDetected sql.NullInt64
		faceConf     sql.NullFloat64
		recConf      sql.NullFloat64
		reason       sql.NullString
		mode         sql.NullString
		processed    sql.NullInt64
		entryType    string
	)
	if err := scanner.Scan(
		&entry.ID,
		&trackID,
		&entryType,
		&entry.Date,
		&entry.Time,
		&detectionRaw,
		&faceBBox,
		&personBBox,
		&faceDetected,
		&faceConf,
		&recConf,
		&reason,
		&mode,
		&processed,
	); err != nil {
		return nil, err
	}

	entry.TrackID = trackID.String
	entry.EntryType = EntryType(entryType)
	entry.FaceBBox = unmarshalBBox(faceBBox.String)
	entry.PersonBBox = unmarshalBBox(personBBox.String)
	entry.FaceDetected = faceDetected.Valid && faceDetected.Int64 != 0
	entry.FaceConfidence = faceConf.Float64
	entry.RecognitionConfidence = recConf.Float64
	entry.Reason = reason.String
	entry.Mode = mode.String
	entry.Processed = processed.Valid && processed.Int64 != 0
	if detection, err := parseTimeString(detectionRaw.String); err == nil {
		entry.DetectionTime = detection
	}
	return &entry, nil
}
