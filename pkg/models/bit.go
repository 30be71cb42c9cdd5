package models

import (
	"crypto/md5" //nolint:gosec // S3 ETags are defined as MD5
	"encoding/hex"
	"fmt"
	"time"
)

// Bit holds the fields shared by buckets and slots: ownership, the
// Unix-style access mask, and arbitrary user metadata. Buckets have a
// zero ParentID; slots point at their bucket.
type Bit struct {
	ID        int64             `json:"id"`
	OwnerID   int64             `json:"owner_id"`
	ParentID  int64             `json:"-"`
	Name      string            `json:"name"`
	Access    int               `json:"access"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Bucket is a top-level container. Bucket names are globally unique.
type Bucket struct {
	Bit
}

// Slot is a named object within exactly one bucket. The payload is
// either inline bytes or a reference to a file under the storage root,
// never both.
type Slot struct {
	Bit
	Payload []byte    `json:"-"`
	File    *FileInfo `json:"file,omitempty"`

	// Joined owner record, populated by listings.
	Owner *User `json:"-"`
}

// FileInfo describes a file-backed payload. Path is relative to the
// storage root. MD5 is the hex digest captured at upload time.
type FileInfo struct {
	Path        string `json:"path"`
	MimeType    string `json:"mime_type,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5"`
}

// ETag returns the quoted hex MD5 of the slot's content.
func (s *Slot) ETag() string {
	if s.File != nil {
		return fmt.Sprintf("%q", s.File.MD5)
	}
	sum := md5.Sum(s.Payload) //nolint:gosec // S3 ETags are defined as MD5
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:]))
}

// Size returns the payload size in bytes.
func (s *Slot) Size() int64 {
	if s.File != nil {
		return s.File.Size
	}
	return int64(len(s.Payload))
}
