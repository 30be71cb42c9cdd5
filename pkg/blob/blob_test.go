package blob

import (
	"crypto/md5" //nolint:gosec // ETags are MD5
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

// BlobTestSuite tests staging, publishing and reading payloads.
type BlobTestSuite struct {
	suite.Suite
	tempDir string
	store   *Store
}

// SetupTest runs before each test.
func (s *BlobTestSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "blob-test-*")
	s.Require().NoError(err)
	s.store = New(s.tempDir)
}

// TearDownTest runs after each test.
func (s *BlobTestSuite) TearDownTest() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

// TestStageComputesSizeAndDigest tests the staging pass.
func (s *BlobTestSuite) TestStageComputesSizeAndDigest() {
	payload := "hello, storage"
	staged, err := s.store.Stage(strings.NewReader(payload))
	s.Require().NoError(err)
	defer staged.Discard()

	sum := md5.Sum([]byte(payload)) //nolint:gosec // see imports
	s.Equal(int64(len(payload)), staged.Size)
	s.Equal(hex.EncodeToString(sum[:]), staged.MD5Hex())
}

// TestPublish tests that a staged payload lands under bucket/name.
func (s *BlobTestSuite) TestPublish() {
	staged, err := s.store.Stage(strings.NewReader("content"))
	s.Require().NoError(err)

	fi, err := s.store.Publish(staged, "mybucket", "file.txt")
	s.Require().NoError(err)
	s.Equal(filepath.Join("mybucket", "file.txt"), fi.Path)
	s.Equal(int64(7), fi.Size)

	data, err := os.ReadFile(filepath.Join(s.tempDir, fi.Path))
	s.Require().NoError(err)
	s.Equal("content", string(data))

	// No stray temp files remain
	entries, err := os.ReadDir(s.tempDir)
	s.Require().NoError(err)
	for _, entry := range entries {
		s.False(strings.HasPrefix(entry.Name(), ".upload-"))
	}
}

// TestPublishCollision tests that a taken name is incremented, never
// overwritten.
func (s *BlobTestSuite) TestPublishCollision() {
	first, err := s.store.Stage(strings.NewReader("first"))
	s.Require().NoError(err)
	fiFirst, err := s.store.Publish(first, "b", "file.txt")
	s.Require().NoError(err)

	second, err := s.store.Stage(strings.NewReader("second"))
	s.Require().NoError(err)
	fiSecond, err := s.store.Publish(second, "b", "file.txt")
	s.Require().NoError(err)

	s.NotEqual(fiFirst.Path, fiSecond.Path)

	data, err := os.ReadFile(filepath.Join(s.tempDir, fiFirst.Path))
	s.Require().NoError(err)
	s.Equal("first", string(data))
	data, err = os.ReadFile(filepath.Join(s.tempDir, fiSecond.Path))
	s.Require().NoError(err)
	s.Equal("second", string(data))
}

// TestPublishConcurrent tests that parallel publishes of the same name
// all land on distinct paths.
func (s *BlobTestSuite) TestPublishConcurrent() {
	const workers = 8

	paths := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			staged, err := s.store.Stage(strings.NewReader("payload"))
			if err != nil {
				return
			}
			fi, err := s.store.Publish(staged, "b", "same.bin")
			if err != nil {
				return
			}
			paths[n] = fi.Path
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		s.Require().NotEmpty(p)
		s.False(seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}

// TestReadFull tests a whole-object read.
func (s *BlobTestSuite) TestReadFull() {
	staged, err := s.store.Stage(strings.NewReader("0123456789"))
	s.Require().NoError(err)
	fi, err := s.store.Publish(staged, "b", "digits")
	s.Require().NoError(err)

	rc, err := s.store.Read(fi, 0, fi.Size-1)
	s.Require().NoError(err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	s.Require().NoError(err)
	s.Equal("0123456789", string(data))
}

// TestReadRange tests a bounded range read.
func (s *BlobTestSuite) TestReadRange() {
	staged, err := s.store.Stage(strings.NewReader("0123456789"))
	s.Require().NoError(err)
	fi, err := s.store.Publish(staged, "b", "digits")
	s.Require().NoError(err)

	rc, err := s.store.Read(fi, 2, 5)
	s.Require().NoError(err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	s.Require().NoError(err)
	s.Equal("2345", string(data))
}

// TestDelete tests removal, including the missing-file case.
func (s *BlobTestSuite) TestDelete() {
	staged, err := s.store.Stage(strings.NewReader("bye"))
	s.Require().NoError(err)
	fi, err := s.store.Publish(staged, "b", "gone")
	s.Require().NoError(err)

	s.store.Delete(fi)
	_, err = os.Stat(filepath.Join(s.tempDir, fi.Path))
	s.True(os.IsNotExist(err))

	// Deleting again is a no-op
	s.store.Delete(fi)
	s.store.Delete(nil)
}

// TestDiscard tests that abandoned stages leave nothing behind.
func (s *BlobTestSuite) TestDiscard() {
	staged, err := s.store.Stage(strings.NewReader("temporary"))
	s.Require().NoError(err)
	staged.Discard()

	entries, err := os.ReadDir(s.tempDir)
	s.Require().NoError(err)
	s.Empty(entries)
}

// TestSuccessor tests the filename increment rules.
func (s *BlobTestSuite) TestSuccessor() {
	testCases := []struct {
		in   string
		want string
	}{
		{"file", "filf"},
		{"file8", "file9"},
		{"a9", "b0"},
		{"z", "aa"},
		{"zz", "aaa"},
		{"Az", "Ba"},
		{"file.txt", "file.txu"},
		{"99", "100"},
	}
	for _, tc := range testCases {
		s.Equal(tc.want, Successor(tc.in), "successor of %q", tc.in)
	}
}

func TestBlobTestSuite(t *testing.T) {
	suite.Run(t, new(BlobTestSuite))
}
