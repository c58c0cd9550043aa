package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sample represents a recorded, normalized hand pose stored in the database.
type Sample struct {
	ID        string
	Owner     string
	Seq       int64 // training order across the whole store
	Label     string
	Features  []float64
	CreatedAt time.Time

	// DecodeErr is set by ListByOwner when the stored features are corrupt.
	// Features is nil in that case.
	DecodeErr error
}

// LabelCount is the number of samples an owner recorded for a label.
type LabelCount struct {
	Label string
	Count int
}

// Stats summarizes store contents.
type Stats struct {
	Owners  int
	Samples int
}

// SampleRepository provides operations on training samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create appends a sample. ID is generated when empty; Seq and CreatedAt are
// filled in from the insert.
func (r *SampleRepository) Create(s *Sample) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = time.Now()

	result, err := r.db.Exec(
		`INSERT INTO samples (id, owner, label, features, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Owner, s.Label, EncodeFeatures(s.Features), s.CreatedAt,
	)
	if err != nil {
		return err
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return err
	}
	s.Seq = seq
	return nil
}

// ListByOwner retrieves an owner's samples in training order. A row whose
// features do not decode is still returned, with DecodeErr set, so one bad
// row does not hide the rest of the dataset.
func (r *SampleRepository) ListByOwner(owner string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT seq, id, owner, label, features, created_at
		 FROM samples
		 WHERE owner = ?
		 ORDER BY seq`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var blob []byte
		if err := rows.Scan(&s.Seq, &s.ID, &s.Owner, &s.Label, &blob, &s.CreatedAt); err != nil {
			return nil, err
		}
		if s.Features, err = DecodeFeatures(blob); err != nil {
			s.DecodeErr = fmt.Errorf("sample %s: %w", s.ID, err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteByOwner removes all of an owner's samples and returns how many were removed.
func (r *SampleRepository) DeleteByOwner(owner string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM samples WHERE owner = ?`, owner)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteByLabel removes an owner's samples with the given label and returns
// how many were removed.
func (r *SampleRepository) DeleteByLabel(owner, label string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM samples WHERE owner = ? AND label = ?`, owner, label)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByLabel returns per-label sample counts for an owner in order of the
// label's first sample.
func (r *SampleRepository) CountByLabel(owner string) ([]LabelCount, error) {
	rows, err := r.db.Query(
		`SELECT label, COUNT(*) FROM samples
		 WHERE owner = ?
		 GROUP BY label
		 ORDER BY MIN(seq)`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// Stats counts distinct owners and total samples.
func (r *SampleRepository) Stats() (Stats, error) {
	var st Stats
	err := r.db.QueryRow(`SELECT COUNT(DISTINCT owner), COUNT(*) FROM samples`).Scan(&st.Owners, &st.Samples)
	return st, err
}
