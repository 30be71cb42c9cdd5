// Package acl implements the Unix-style permission model shared by
// buckets and slots. The access mask uses the familiar octal layout:
// the "other" bits grant the public, the "group" bits grant any
// authenticated user, and ownership is checked explicitly rather than
// through the owner bits.
package acl

import (
	"strings"

	"carpark/pkg/models"
)

// Permission bits within a bit's access mask.
const (
	Readable       = 0o004
	Writable       = 0o002
	ReadableByAuth = 0o040
	WritableByAuth = 0o020
)

// Default is the mask applied when no canned ACL is requested.
const Default = 0o600

// Canned maps the S3 canned ACL names to access masks.
var Canned = map[string]int{
	"private":                  0o600,
	"public-read":              0o644,
	"public-read-write":        0o666,
	"authenticated-read":       0o640,
	"authenticated-read-write": 0o660,
}

// Mask resolves a canned ACL name to an access mask. Unknown or empty
// names fall back to private.
func Mask(name string) int {
	if access, ok := Canned[name]; ok {
		return access
	}
	return Default
}

// OverrideFunc looks up a per-user access override row for a bit.
// It reports the override mask and whether a row exists.
type OverrideFunc func(bitID, userID int64) (int, bool)

// OwnedBy reports whether user is present and owns the bit.
func OwnedBy(bit *models.Bit, user *models.User) bool {
	return user != nil && bit.OwnerID == user.ID
}

// ReadableBy reports whether user may read the bit. A nil override
// function disables per-user override rows.
func ReadableBy(bit *models.Bit, user *models.User, override OverrideFunc) bool {
	return checkAccess(bit, user, ReadableByAuth, Readable, override)
}

// WritableBy reports whether user may write the bit.
func WritableBy(bit *models.Bit, user *models.User, override OverrideFunc) bool {
	return checkAccess(bit, user, WritableByAuth, Writable, override)
}

func checkAccess(bit *models.Bit, user *models.User, groupPerm, userPerm int, override OverrideFunc) bool {
	if OwnedBy(bit, user) {
		return true
	}
	if user != nil && bit.Access&groupPerm > 0 {
		return true
	}
	if bit.Access&userPerm > 0 {
		return true
	}
	if user != nil && override != nil {
		if mask, ok := override(bit.ID, user.ID); ok && mask&userPerm > 0 {
			return true
		}
	}
	return false
}

// Describe renders an access mask as its canned ACL name, or as an
// "rw-rw-rw-" style triplet when no canned name matches. Used in logs.
func Describe(access int) string {
	for name, mask := range Canned {
		if mask == access {
			return name
		}
	}
	var b strings.Builder
	for _, shift := range []int{6, 3, 0} {
		bits := access >> shift
		for _, p := range []struct {
			bit int
			r   byte
		}{{4, 'r'}, {2, 'w'}, {1, 'x'}} {
			if bits&p.bit != 0 {
				b.WriteByte(p.r)
			} else {
				b.WriteByte('-')
			}
		}
	}
	return b.String()
}
