package tree

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"carpark/pkg/models"
	"carpark/pkg/sig"
)

const (
	accessKeyBytes = 10
	secretKeyBytes = 30
)

// GenerateAccessKey returns a fresh random access key: 20 uppercase hex
// characters, in the style of AWS key IDs.
func GenerateAccessKey() string {
	buf := make([]byte, accessKeyBytes)
	_, _ = rand.Read(buf)
	return strings.ToUpper(hex.EncodeToString(buf))
}

// GenerateSecretKey returns a fresh random secret key.
func GenerateSecretKey() string {
	buf := make([]byte, secretKeyBytes)
	_, _ = rand.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}

// CreateUser creates a user record with generated credentials. The
// password is stored as an HMAC keyed by the password over the secret,
// so plaintext never lands in the database.
func (s *Store) CreateUser(login, password, email string, superuser bool) (*models.User, error) {
	if len(login) < loginMinLength || len(login) > loginMaxLength {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accessKey := GenerateAccessKey()
	secretKey := GenerateSecretKey()
	now := time.Now()

	result, err := s.db.ExecContext(context.Background(),
		`INSERT INTO users (login, password, email, access_key, secret_key, superuser, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		login, sig.HashPassword(password, secretKey), email, accessKey, secretKey, superuser, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return &models.User{
		ID:           userID,
		Login:        login,
		Email:        email,
		AccessKey:    accessKey,
		SecretKey:    secretKey,
		PasswordHash: sig.HashPassword(password, secretKey),
		Superuser:    superuser,
		CreatedAt:    now,
	}, nil
}

// FindUserByAccessKey retrieves an active user by access key.
func (s *Store) FindUserByAccessKey(accessKey string) (*models.User, error) {
	return s.findUser(`access_key = ?`, accessKey)
}

// FindUserByLogin retrieves an active user by login.
func (s *Store) FindUserByLogin(login string) (*models.User, error) {
	return s.findUser(`login = ?`, login)
}

func (s *Store) findUser(cond string, arg any) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user := &models.User{}
	var email sql.NullString
	err := s.db.QueryRowContext(context.Background(),
		`SELECT id, login, password, email, access_key, secret_key, superuser, created_at
		 FROM users WHERE deleted = FALSE AND `+cond,
		arg,
	).Scan(&user.ID, &user.Login, &user.PasswordHash, &email,
		&user.AccessKey, &user.SecretKey, &user.Superuser, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	user.Email = email.String
	return user, nil
}

// CheckPassword verifies a control-panel password against the stored
// hash.
func CheckPassword(user *models.User, password string) bool {
	return user.PasswordHash == sig.HashPassword(password, user.SecretKey)
}

// CountUsers returns the number of active user records.
func (s *Store) CountUsers() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM users WHERE deleted = FALSE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return count, nil
}
