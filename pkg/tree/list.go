package tree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"carpark/pkg/models"
)

// DefaultMaxKeys is the listing limit applied when a caller does not
// supply one.
const DefaultMaxKeys = 1000

// ListBuckets lists the buckets owned by ownerID, ordered by name.
func (s *Store) ListBuckets(ownerID int64) ([]models.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, owner_id, name, access, created_at, updated_at
		 FROM bits WHERE parent_id IS NULL AND owner_id = ?
		 ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	var buckets []models.Bucket
	for rows.Next() {
		var b models.Bucket
		err := rows.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Access, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		buckets = append(buckets, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return buckets, nil
}

// ListSlots returns up to limit slots under bucketID whose names start
// with prefix and sort strictly after marker, ordered by name. The
// second return value is the total number of slots matching prefix and
// marker regardless of limit, so callers can compute truncation.
func (s *Store) ListSlots(bucketID int64, prefix, marker string, limit int) ([]models.Slot, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()

	if limit <= 0 {
		limit = DefaultMaxKeys
	}

	where := `b.parent_id = ?`
	args := []any{bucketID}
	if prefix != "" {
		where += ` AND b.name LIKE ? ESCAPE '\'`
		args = append(args, likePattern(prefix))
	}
	if marker != "" {
		where += ` AND b.name > ?`
		args = append(args, marker)
	}

	var total int
	countArgs := make([]any, len(args))
	copy(countArgs, args)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bits b WHERE `+where, countArgs...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.owner_id, b.parent_id, b.name, b.access, b.meta, b.payload, b.file_info,
		        b.created_at, b.updated_at, u.login, u.access_key
		 FROM bits b JOIN users u ON b.owner_id = u.id
		 WHERE `+where+` ORDER BY b.name LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	var slots []models.Slot
	for rows.Next() {
		slot, scanErr := scanSlot(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrDatabaseError, scanErr)
		}
		slots = append(slots, *slot)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return slots, total, nil
}

// CountSlots returns the number of slots under a bucket.
func (s *Store) CountSlots(bucketID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM bits WHERE parent_id = ?`, bucketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return count, nil
}

// BucketFor returns the bucket that owns a slot.
func (s *Store) BucketFor(slot *models.Slot) (*models.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucketRecord := &models.Bucket{}
	err := s.db.QueryRowContext(context.Background(),
		`SELECT id, owner_id, name, access, created_at, updated_at
		 FROM bits WHERE id = ? AND parent_id IS NULL`,
		slot.ParentID,
	).Scan(&bucketRecord.ID, &bucketRecord.OwnerID, &bucketRecord.Name,
		&bucketRecord.Access, &bucketRecord.CreatedAt, &bucketRecord.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return bucketRecord, nil
}

// likePattern escapes LIKE wildcards in a prefix and appends %.
func likePattern(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
