package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetException returns the contact row for a normalized number regardless of
// its active flag, or nil if no row exists.
func (s *Store) GetException(ctx context.Context, number string) (*ExceptionContact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT phone_number, contact_name, category, active, created_at
		 FROM exception_contacts WHERE phone_number = $1`,
		number,
	)
	c, err := scanException(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exception: %w", err)
	}
	return c, nil
}

func scanException(row rowScanner) (*ExceptionContact, error) {
	var c ExceptionContact
	var active int
	var created string
	if err := row.Scan(&c.PhoneNumber, &c.ContactName, &c.Category, &active, &created); err != nil {
		return nil, err
	}
	c.Active = active != 0
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// UpsertException adds or reactivates a contact. The unique key is the phone
// number; re-adding a soft-deleted contact updates the existing row in place.
func (s *Store) UpsertException(ctx context.Context, number, name, category string) (*ExceptionContact, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exception_contacts (phone_number, contact_name, category, active, created_at)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (phone_number) DO UPDATE
		 SET contact_name = excluded.contact_name, category = excluded.category, active = 1`,
		number, name, category, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert exception: %w", err)
	}
	return s.GetException(ctx, number)
}

// DeactivateException soft-deletes a contact. Deactivating an unknown or
// already-inactive number is not an error.
func (s *Store) DeactivateException(ctx context.Context, number string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE exception_contacts SET active = 0 WHERE phone_number = $1`,
		number,
	)
	if err != nil {
		return fmt.Errorf("deactivate exception: %w", err)
	}
	return nil
}

// ActiveExceptions returns all active contacts ordered by name.
func (s *Store) ActiveExceptions(ctx context.Context) ([]ExceptionContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone_number, contact_name, category, active, created_at
		 FROM exception_contacts WHERE active = 1 ORDER BY contact_name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()

	var contacts []ExceptionContact
	for rows.Next() {
		c, scanErr := scanException(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan exception: %w", scanErr)
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}
