// Package blob stores object payloads as flat files under a storage
// root, one directory per bucket. Uploads stream into a temp file
// first and are published with an atomic rename, so readers never
// observe a partial write. Name collisions are resolved by
// string-increment rather than overwrite: no two slots may share a
// backing file.
package blob

import (
	"crypto/md5" //nolint:gosec // payload integrity uses MD5 per the wire protocol
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"carpark/pkg/log"
	"carpark/pkg/models"
)

const dirPerm = 0o750

// Store writes and reads file-backed payloads under a storage root.
type Store struct {
	root string
	// publishMutex serializes the free-name probe and rename so two
	// concurrent uploads cannot claim the same path.
	publishMutex sync.Mutex
}

// New creates a blob store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the storage root path.
func (s *Store) Root() string {
	return s.root
}

// Staged is a payload that has been fully received into a temp file
// but not yet published. Callers either Publish it or Discard it.
type Staged struct {
	Size   int64
	Digest []byte

	tempPath string
}

// MD5Hex returns the hex digest of the staged payload.
func (st *Staged) MD5Hex() string {
	return hex.EncodeToString(st.Digest)
}

// Stage streams r into a temp file under the storage root, computing
// running size and MD5. The temp file lives on the same filesystem as
// the published paths so the final rename is atomic.
func (s *Store) Stage(r io.Reader) (*Staged, error) {
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	tempFile, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	hasher := md5.New() //nolint:gosec // see package comment
	size, err := io.Copy(io.MultiWriter(hasher, tempFile), r)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return nil, err
	}

	return &Staged{
		Size:     size,
		Digest:   hasher.Sum(nil),
		tempPath: tempPath,
	}, nil
}

// Publish moves a staged payload into place at
// <root>/<bucket>/<base name>, incrementing the name until a free path
// is found, and returns the file reference.
func (s *Store) Publish(st *Staged, bucketName, name string) (*models.FileInfo, error) {
	bucketDir := filepath.Join(s.root, bucketName)
	if err := os.MkdirAll(bucketDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "file"
	}

	s.publishMutex.Lock()
	for {
		if _, err := os.Stat(filepath.Join(bucketDir, base)); os.IsNotExist(err) {
			break
		}
		base = Successor(base)
	}
	rel := filepath.Join(bucketName, base)
	err := os.Rename(st.tempPath, filepath.Join(s.root, rel))
	s.publishMutex.Unlock()
	if err != nil {
		_ = os.Remove(st.tempPath)
		return nil, fmt.Errorf("failed to publish file: %w", err)
	}

	return &models.FileInfo{
		Path: rel,
		Size: st.Size,
		MD5:  st.MD5Hex(),
	}, nil
}

// Discard removes a staged payload that will not be published.
func (st *Staged) Discard() {
	if st == nil {
		return
	}
	if err := os.Remove(st.tempPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", st.tempPath).Msg("Failed to remove temp file")
	}
}

// Read opens the backing file of fi positioned at start, limited to
// the inclusive range [start, end]. Callers resolve the range against
// fi.Size first.
func (s *Store) Read(fi *models.FileInfo, start, end int64) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, fi.Path))
	if err != nil {
		return nil, err
	}
	if start == 0 && end >= fi.Size-1 {
		return f, nil
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &limitedFile{Reader: io.LimitReader(f, end-start+1), f: f}, nil
}

// Delete removes the backing file. A missing file is not an error: the
// slot row is already gone or going.
func (s *Store) Delete(fi *models.FileInfo) {
	if fi == nil {
		return
	}
	if err := os.Remove(filepath.Join(s.root, fi.Path)); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", fi.Path).Msg("Failed to remove backing file")
	}
}

type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error {
	return l.f.Close()
}

// Successor returns the next filename in string-increment order: the
// rightmost alphanumeric is incremented, carrying leftward, with a new
// character prepended on overflow ("file8" -> "file9", "a9" -> "b0",
// "zz" -> "aaa"). Names with no alphanumerics get a numeric suffix.
func Successor(name string) string {
	runes := []rune(name)
	for i := len(runes) - 1; i >= 0; i-- {
		switch c := runes[i]; {
		case c >= '0' && c <= '8', c >= 'a' && c <= 'y', c >= 'A' && c <= 'Y':
			runes[i] = c + 1
			return string(runes)
		case c == '9':
			runes[i] = '0'
		case c == 'z':
			runes[i] = 'a'
		case c == 'Z':
			runes[i] = 'A'
		default:
			continue
		}
		if i == 0 {
			lead := "1"
			switch runes[0] {
			case 'a':
				lead = "a"
			case 'A':
				lead = "A"
			}
			return lead + string(runes)
		}
	}
	return name + "1"
}
