package store

import (
	"database/sql"
	"errors"
	"time"
)

// SettingsRepository stores per-owner classifier settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// GetK returns the owner's neighbor count, or ErrNotFound if never set.
func (r *SettingsRepository) GetK(owner string) (int, error) {
	var k int
	err := r.db.QueryRow(`SELECT k FROM owner_settings WHERE owner = ?`, owner).Scan(&k)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return k, nil
}

// SetK stores the owner's neighbor count, replacing any previous value.
func (r *SettingsRepository) SetK(owner string, k int) error {
	_, err := r.db.Exec(
		`INSERT INTO owner_settings (owner, k, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(owner) DO UPDATE SET k = excluded.k, updated_at = excluded.updated_at`,
		owner, k, time.Now(),
	)
	return err
}
