package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"turnstile/internal/embedding"
	"turnstile/internal/services"
)

// SaveStaff inserts or replaces a staff member. The face embedding is stored
// through the versioned codec; nil embeddings persist as NULL.
func (s *Store) SaveStaff(ctx context.Context, member *StaffMember) error {
	if member == nil {
		return errors.New("staff member is nil")
	}
	if member.StaffID == "" || member.Name == "" {
		return services.Wrap(services.ErrValidation, "store", "save staff", "staff id and name are required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob []byte
	if len(member.Embedding) > 0 {
		blob = embedding.Encode(member.Embedding)
	}

	_, err := s.execWithRetry(ensureContext(ctx),
		`INSERT INTO staff (staff_id, name, department, embedding, employee_id, photo, showcase_photo, active)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(staff_id) DO UPDATE SET
             name = excluded.name,
             department = excluded.department,
             embedding = excluded.embedding,
             employee_id = excluded.employee_id,
             photo = excluded.photo,
             showcase_photo = excluded.showcase_photo,
             active = excluded.active`,
		member.StaffID,
		member.Name,
		nullableString(member.Department),
		nullableBytes(blob),
		nullableString(member.EmployeeID),
		nullableBytes(member.Photo),
		nullableBytes(member.ShowcasePhoto),
		boolToInt(member.Active),
	)
	if err != nil {
		return fmt.Errorf("save staff: %w", err)
	}
	return nil
}

// StaffByID fetches one staff member without photo payloads. Returns nil
// when no row matches.
func (s *Store) StaffByID(ctx context.Context, staffID string) (*StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT staff_id, name, department, employee_id, added_date, active
         FROM staff WHERE staff_id = ?`, staffID)

	member, err := scanStaffRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return member, nil
}

// AllStaff lists staff members without embeddings or photo payloads,
// ordered by name. Deactivated members are included only when asked for;
// most callers want the live roster.
func (s *Store) AllStaff(ctx context.Context, includeInactive bool) ([]*StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT staff_id, name, department, employee_id, added_date, active
         FROM staff WHERE active = 1 ORDER BY name`
	if includeInactive {
		query = `SELECT staff_id, name, department, employee_id, added_date, active
         FROM staff ORDER BY name`
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("query staff: %w", err)
	}
	defer rows.Close()

	var members []*StaffMember
	for rows.Next() {
		member, err := scanStaffRow(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// StaffEmbeddings loads the face vectors of all active staff. Rows whose
// blobs fail the codec are skipped so one corrupt record cannot block
// recognition of everyone else.
func (s *Store) StaffEmbeddings(ctx context.Context) ([]StaffEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT staff_id, name, embedding FROM staff
         WHERE active = 1 AND embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query staff embeddings: %w", err)
	}
	defer rows.Close()

	var out []StaffEmbedding
	for rows.Next() {
		var (
			id   string
			name string
			blob []byte
		)
		if err := rows.Scan(&id, &name, &blob); err != nil {
			return nil, err
		}
		vector, err := embedding.Decode(blob)
		if err != nil {
			continue
		}
		out = append(out, StaffEmbedding{StaffID: id, Name: name, Vector: vector})
	}
	return out, rows.Err()
}

// UpdateStaffEmployeeID sets the employee number for a staff member.
func (s *Store) UpdateStaffEmployeeID(ctx context.Context, staffID, employeeID string) error {
	return s.updateStaffField(ctx, "employee_id", staffID, nullableString(employeeID))
}

// UpdateStaffPhoto replaces the enrollment photo JPEG.
func (s *Store) UpdateStaffPhoto(ctx context.Context, staffID string, photo []byte) error {
	return s.updateStaffField(ctx, "photo", staffID, nullableBytes(photo))
}

// UpdateStaffShowcasePhoto replaces the display photo JPEG.
func (s *Store) UpdateStaffShowcasePhoto(ctx context.Context, staffID string, photo []byte) error {
	return s.updateStaffField(ctx, "showcase_photo", staffID, nullableBytes(photo))
}

// UpdateStaffProfile rewrites the descriptive fields without touching the
// embedding or photos.
func (s *Store) UpdateStaffProfile(ctx context.Context, staffID, name, department, employeeID string) error {
	if staffID == "" || name == "" {
		return services.Wrap(services.ErrValidation, "store", "update staff profile",
			"staff id and name are required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE staff SET name = ?, department = ?, employee_id = ? WHERE staff_id = ?`,
		name, nullableString(department), nullableString(employeeID), staffID)
	if err != nil {
		return fmt.Errorf("update staff profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update staff profile",
			fmt.Sprintf("staff %s not enrolled", staffID), nil)
	}
	return nil
}

func (s *Store) updateStaffField(ctx context.Context, column, staffID string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE staff SET `+column+` = ? WHERE staff_id = ?`, value, staffID)
	if err != nil {
		return fmt.Errorf("update staff %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update staff", fmt.Sprintf("staff %s not enrolled", staffID), nil)
	}
	return nil
}

// StaffPhoto returns the display photo, preferring the showcase image and
// falling back to the enrollment photo.
func (s *Store) StaffPhoto(ctx context.Context, staffID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var showcase, photo []byte
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT showcase_photo, photo FROM staff WHERE staff_id = ?`, staffID)
	if err := row.Scan(&showcase, &photo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "store", "staff photo", fmt.Sprintf("staff %s not enrolled", staffID), nil)
		}
		return nil, fmt.Errorf("staff photo: %w", err)
	}
	if len(showcase) > 0 {
		return showcase, nil
	}
	return photo, nil
}

// DeactivateStaff hides a staff member from recognition and listings while
// keeping their attendance history intact.
func (s *Store) DeactivateStaff(ctx context.Context, staffID string) error {
	return s.updateStaffField(ctx, "active", staffID, 0)
}

func scanStaffRow(scanner interface{ Scan(dest ...any) error }) (*StaffMember, error) {
	var (
		id         string
		name       string
		department sql.NullString
		employeeID sql.NullString
		addedRaw   sql.NullString
		active     sql.NullInt64
	)
	if err := scanner.Scan(&id, &name, &department, &employeeID, &addedRaw, &active); err != nil {
		return nil, err
	}
	member := &StaffMember{
		StaffID:    id,
		Name:       name,
		Department: department.String,
		EmployeeID: employeeID.String,
		Active:     active.Valid && active.Int64 != 0,
	}
	if added, err := parseTimeString(addedRaw.String); err == nil {
		member.AddedAt = added
	}
	return member, nil
}
