package tree

import "errors"

var (
	// ErrBucketExists is returned when creating a bucket whose name is taken.
	ErrBucketExists = errors.New("bucket already exists")

	// ErrBucketNotFound is returned when the requested bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrBucketNotEmpty is returned when deleting a bucket that still holds slots.
	ErrBucketNotEmpty = errors.New("bucket is not empty")

	// ErrKeyNotFound is returned when the requested slot does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUserNotFound is returned when no matching user record exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when a login or access key is already taken.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidName is returned when a bucket or slot name fails validation.
	ErrInvalidName = errors.New("invalid name")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
