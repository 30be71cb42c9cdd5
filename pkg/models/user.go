package models

import "time"

// User is an account that can own buckets and objects. AccessKey and
// SecretKey are the credentials used for request signing; PasswordHash
// is only consulted by the control panel login, which lives outside
// this server.
type User struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	Email        string    `json:"email,omitempty"`
	AccessKey    string    `json:"access_key"`
	SecretKey    string    `json:"-"`
	PasswordHash string    `json:"-"`
	Superuser    bool      `json:"superuser,omitempty"`
	Deleted      bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
