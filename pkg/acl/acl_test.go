package acl

import (
	"testing"

	"carpark/pkg/models"

	"github.com/stretchr/testify/suite"
)

// ACLTestSuite tests the permission predicates.
type ACLTestSuite struct {
	suite.Suite
	owner *models.User
	other *models.User
}

func (s *ACLTestSuite) SetupTest() {
	s.owner = &models.User{ID: 1, Login: "owner"}
	s.other = &models.User{ID: 2, Login: "other"}
}

func (s *ACLTestSuite) bit(access int) *models.Bit {
	return &models.Bit{ID: 10, OwnerID: s.owner.ID, Name: "thing", Access: access}
}

// TestMask tests canned ACL resolution.
func (s *ACLTestSuite) TestMask() {
	s.Equal(0o600, Mask("private"))
	s.Equal(0o644, Mask("public-read"))
	s.Equal(0o666, Mask("public-read-write"))
	s.Equal(0o640, Mask("authenticated-read"))
	s.Equal(0o660, Mask("authenticated-read-write"))

	// Unknown and empty names fall back to private
	s.Equal(0o600, Mask(""))
	s.Equal(0o600, Mask("bogus"))
}

// TestOwnedBy tests ownership checks.
func (s *ACLTestSuite) TestOwnedBy() {
	bit := s.bit(0o600)
	s.True(OwnedBy(bit, s.owner))
	s.False(OwnedBy(bit, s.other))
	s.False(OwnedBy(bit, nil))
}

// TestPrivate tests that a private bit is closed to everyone but the
// owner.
func (s *ACLTestSuite) TestPrivate() {
	bit := s.bit(0o600)

	s.True(ReadableBy(bit, s.owner, nil))
	s.True(WritableBy(bit, s.owner, nil))

	s.False(ReadableBy(bit, s.other, nil))
	s.False(WritableBy(bit, s.other, nil))
	s.False(ReadableBy(bit, nil, nil))
	s.False(WritableBy(bit, nil, nil))
}

// TestPublicRead tests that public-read admits anonymous readers but
// no writers.
func (s *ACLTestSuite) TestPublicRead() {
	bit := s.bit(0o644)

	s.True(ReadableBy(bit, nil, nil))
	s.True(ReadableBy(bit, s.other, nil))
	s.False(WritableBy(bit, nil, nil))
	s.False(WritableBy(bit, s.other, nil))
}

// TestPublicReadWrite tests the fully open mask.
func (s *ACLTestSuite) TestPublicReadWrite() {
	bit := s.bit(0o666)

	s.True(ReadableBy(bit, nil, nil))
	s.True(WritableBy(bit, nil, nil))
}

// TestAuthenticatedRead tests that group bits require a user.
func (s *ACLTestSuite) TestAuthenticatedRead() {
	bit := s.bit(0o640)

	s.True(ReadableBy(bit, s.other, nil))
	s.False(ReadableBy(bit, nil, nil))
	s.False(WritableBy(bit, s.other, nil))
}

// TestOverride tests per-user override rows.
func (s *ACLTestSuite) TestOverride() {
	bit := s.bit(0o600)
	grants := map[int64]int{s.other.ID: Readable}
	override := func(bitID, userID int64) (int, bool) {
		mask, ok := grants[userID]
		return mask, ok
	}

	s.True(ReadableBy(bit, s.other, override))
	s.False(WritableBy(bit, s.other, override))

	// Overrides never apply to anonymous callers
	s.False(ReadableBy(bit, nil, override))
}

// TestDescribe tests mask rendering.
func (s *ACLTestSuite) TestDescribe() {
	s.Equal("private", Describe(0o600))
	s.Equal("public-read", Describe(0o644))
	s.Equal("rwxr-----", Describe(0o740))
	s.Equal("---------", Describe(0))
}

func TestACLTestSuite(t *testing.T) {
	suite.Run(t, new(ACLTestSuite))
}
