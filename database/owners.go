package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

const ownerColumns = `owner_id, name, address, phone, charger_id, created_at, updated_at`

// EnsureOwner inserts the owner unless one already exists for its charger.
// Existing owners are left untouched.
func (s *Store) EnsureOwner(ctx context.Context, q Querier, owner models.Owner) (bool, error) {
	now := time.Now().UTC()
	result, err := s.querier(q).ExecContext(ctx, `
		INSERT INTO owners (owner_id, name, address, phone, charger_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, owner.ID, owner.Name, owner.Address, owner.Phone, owner.ChargerID, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert owner %s: %w", owner.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) ListOwners(ctx context.Context) ([]models.Owner, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ownerColumns+` FROM owners ORDER BY name, owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	owners := []models.Owner{}
	for rows.Next() {
		var o models.Owner
		if err := rows.Scan(&o.ID, &o.Name, &o.Address, &o.Phone, &o.ChargerID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func (s *Store) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	var o models.Owner
	err := s.db.QueryRowContext(ctx, `SELECT `+ownerColumns+` FROM owners WHERE owner_id = ?`, ownerID).
		Scan(&o.ID, &o.Name, &o.Address, &o.Phone, &o.ChargerID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query owner %s: %w", ownerID, err)
	}
	return &o, nil
}

// UpdateOwner changes the contact details of an owner. The charger link is
// fixed at creation.
func (s *Store) UpdateOwner(ctx context.Context, owner models.Owner) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE owners SET name = ?, address = ?, phone = ?, updated_at = ?
		WHERE owner_id = ?
	`, owner.Name, owner.Address, owner.Phone, time.Now().UTC(), owner.ID)
	if err != nil {
		return fmt.Errorf("failed to update owner %s: %w", owner.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
