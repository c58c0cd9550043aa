package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Samples table - one row per recorded hand pose. seq is the training
		// order and must never be reused.
		`CREATE TABLE IF NOT EXISTS samples (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL,
			label TEXT NOT NULL,
			features BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Owner settings table - per-owner classifier settings
		`CREATE TABLE IF NOT EXISTS owner_settings (
			owner TEXT PRIMARY KEY,
			k INTEGER NOT NULL CHECK(k > 0),
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_samples_owner_seq ON samples(owner, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_owner_label ON samples(owner, label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
