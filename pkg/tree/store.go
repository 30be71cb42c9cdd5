// Package tree manages the bucket/slot hierarchy and user records in
// SQLite. Buckets and slots share one bits table: a bucket is a row
// with no parent, a slot points at its bucket. The tree is always
// exactly two levels deep.
package tree

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"carpark/pkg/models"

	_ "modernc.org/sqlite"
)

// bucketNamePattern defines the valid format for bucket names.
var bucketNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store manages bucket, slot and user metadata in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new metadata store with the given database path.
func NewStore(dbPath string) (*Store, error) {
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}

	ctx := context.Background()

	// Enable foreign keys
	if _, err := database.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %w", ErrDatabaseError, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %w", ErrDatabaseError, err)
	}

	store := &Store{db: database}
	if err := store.Initialize(); err != nil {
		_ = database.Close()
		return nil, err
	}

	return store, nil
}

// Initialize creates the database schema.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(context.Background(), Schema)
	if err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ValidateBucketName checks if the bucket name is valid.
func ValidateBucketName(name string) error {
	if len(name) < nameMinLength || len(name) > nameMaxLength {
		return ErrInvalidName
	}
	if !bucketNamePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidateSlotName checks if the slot name is valid. Slot names only
// carry a length constraint; keys may contain slashes.
func ValidateSlotName(name string) error {
	if len(name) < nameMinLength || len(name) > nameMaxLength {
		return ErrInvalidName
	}
	return nil
}

// CreateBucket creates a new bucket owned by ownerID with the given
// access mask.
func (s *Store) CreateBucket(name string, ownerID int64, access int) (*models.Bucket, error) {
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result, err := s.db.ExecContext(context.Background(),
		`INSERT INTO bits (owner_id, parent_id, name, access, created_at, updated_at)
		 VALUES (?, NULL, ?, ?, ?, ?)`,
		ownerID, name, access, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrBucketExists
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	bucketID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return &models.Bucket{Bit: models.Bit{
		ID:        bucketID,
		OwnerID:   ownerID,
		Name:      name,
		Access:    access,
		CreatedAt: now,
		UpdatedAt: now,
	}}, nil
}

// FindBucket retrieves a bucket by name.
func (s *Store) FindBucket(name string) (*models.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucketRecord := &models.Bucket{}
	err := s.db.QueryRowContext(context.Background(),
		`SELECT id, owner_id, name, access, created_at, updated_at
		 FROM bits WHERE parent_id IS NULL AND name = ?`,
		name,
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

// DeleteBucket deletes a bucket if it is empty.
func (s *Store) DeleteBucket(bucketID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()

	var slotCount int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bits WHERE parent_id = ?`, bucketID).Scan(&slotCount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if slotCount > 0 {
		return ErrBucketNotEmpty
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM bits WHERE id = ? AND parent_id IS NULL`, bucketID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if affected == 0 {
		return ErrBucketNotFound
	}
	return nil
}

// FindSlot retrieves a slot by bucket ID and key, with its owner record
// joined in.
func (s *Store) FindSlot(bucketID int64, key string) (*models.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(context.Background(),
		`SELECT b.id, b.owner_id, b.parent_id, b.name, b.access, b.meta, b.payload, b.file_info,
		        b.created_at, b.updated_at, u.login, u.access_key
		 FROM bits b JOIN users u ON b.owner_id = u.id
		 WHERE b.parent_id = ? AND b.name = ?`,
		bucketID, key,
	)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return slot, nil
}

// PutSlot creates or overwrites the slot named key under bucketID. On
// overwrite the previous file reference, if any, is returned so the
// caller can release the backing file.
func (s *Store) PutSlot(bucketID int64, key string, ownerID int64, meta map[string]string,
	payload []byte, file *models.FileInfo) (*models.Slot, *models.FileInfo, error) {
	if err := ValidateSlotName(key); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()

	var prevFile *models.FileInfo
	var prevJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT file_info FROM bits WHERE parent_id = ? AND name = ?`, bucketID, key,
	).Scan(&prevJSON)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if prevJSON.Valid && prevJSON.String != "" {
		prevFile = &models.FileInfo{}
		if err := json.Unmarshal([]byte(prevJSON.String), prevFile); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to parse file info: %w", ErrDatabaseError, err)
		}
	}

	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return nil, nil, err
	}
	fileJSON, err := marshalFileInfo(file)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bits (owner_id, parent_id, name, access, meta, payload, file_info, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(parent_id, name) WHERE parent_id IS NOT NULL DO UPDATE SET
		 owner_id = excluded.owner_id,
		 meta = excluded.meta,
		 payload = excluded.payload,
		 file_info = excluded.file_info,
		 updated_at = excluded.updated_at`,
		ownerID, bucketID, key, 0o600, metaJSON, payload, fileJSON, now, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	slot, err := s.findSlotLocked(bucketID, key)
	if err != nil {
		return nil, nil, err
	}
	return slot, prevFile, nil
}

// findSlotLocked re-reads a slot while the write lock is held.
func (s *Store) findSlotLocked(bucketID int64, key string) (*models.Slot, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT b.id, b.owner_id, b.parent_id, b.name, b.access, b.meta, b.payload, b.file_info,
		        b.created_at, b.updated_at, u.login, u.access_key
		 FROM bits b JOIN users u ON b.owner_id = u.id
		 WHERE b.parent_id = ? AND b.name = ?`,
		bucketID, key,
	)
	slot, err := scanSlot(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return slot, nil
}

// DeleteSlot removes a slot row and its ACL override rows.
func (s *Store) DeleteSlot(slotID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(context.Background(),
		`DELETE FROM bits WHERE id = ? AND parent_id IS NOT NULL`, slotID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Grant sets the access mask on a bucket or slot.
func (s *Store) Grant(bitID int64, access int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(context.Background(),
		`UPDATE bits SET access = ? WHERE id = ?`, access, bitID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// GrantUser upserts a per-user ACL override row for a bit.
func (s *Store) GrantUser(bitID, userID int64, access int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO bits_users (bit_id, user_id, access) VALUES (?, ?, ?)
		 ON CONFLICT(bit_id, user_id) DO UPDATE SET access = excluded.access`,
		bitID, userID, access)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// UserAccess looks up the per-user override mask for a bit. It reports
// whether an override row exists, making it usable as an
// acl.OverrideFunc.
func (s *Store) UserAccess(bitID, userID int64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var access int
	err := s.db.QueryRowContext(context.Background(),
		`SELECT access FROM bits_users WHERE bit_id = ? AND user_id = ?`,
		bitID, userID).Scan(&access)
	if err != nil {
		return 0, false
	}
	return access, true
}

func marshalMeta(meta map[string]string) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: failed to serialize metadata: %w", ErrDatabaseError, err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalFileInfo(file *models.FileInfo) (sql.NullString, error) {
	if file == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(file)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: failed to serialize file info: %w", ErrDatabaseError, err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	slot := &models.Slot{Owner: &models.User{}}
	var (
		parentID sql.NullInt64
		metaJSON sql.NullString
		fileJSON sql.NullString
	)
	err := row.Scan(&slot.ID, &slot.OwnerID, &parentID, &slot.Name, &slot.Access,
		&metaJSON, &slot.Payload, &fileJSON, &slot.CreatedAt, &slot.UpdatedAt,
		&slot.Owner.Login, &slot.Owner.AccessKey)
	if err != nil {
		return nil, err
	}
	slot.ParentID = parentID.Int64
	slot.Owner.ID = slot.OwnerID

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &slot.Meta); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}
	if fileJSON.Valid && fileJSON.String != "" {
		slot.File = &models.FileInfo{}
		if err := json.Unmarshal([]byte(fileJSON.String), slot.File); err != nil {
			return nil, fmt.Errorf("failed to parse file info: %w", err)
		}
	}
	return slot, nil
}
