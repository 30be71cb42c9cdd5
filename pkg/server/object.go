package server

import (
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"carpark/pkg/acl"
	"carpark/pkg/log"
	"carpark/pkg/models"
	"carpark/pkg/tree"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

const defaultContentType = "binary/octet-stream"

// base64Pattern validates the shape of a Content-MD5 header before the
// digest itself is compared.
var base64Pattern = regexp.MustCompile(`^(?:[0-9a-zA-Z+/]{4})*(?:[0-9a-zA-Z+/]{2}(?:[0-9a-zA-Z+/]|=){2})?$`)

// bytesPattern matches the three supported Range forms: bytes=N-M,
// bytes=N- and bytes=-M. Multi-range specs fail the match and surface
// as NotImplemented.
var bytesPattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// putSlot handles PUT /{bucket}/{key}: stream the body to the blob
// store, verify length and digest, then upsert the slot and grant the
// requested ACL under a per-key lock.
func (s *Server) putSlot(c echo.Context) error {
	key := c.Param("*")
	if key == "" {
		return s.putBucket(c)
	}
	mask, err := requestedACL(c)
	if err != nil {
		return err
	}
	bucket, err := s.findBucket(c)
	if err != nil {
		return err
	}

	user := currentUser(c)
	if !acl.WritableBy(&bucket.Bit, user, s.override) {
		return ErrAccessDenied
	}

	req := c.Request()
	if req.ContentLength < 0 {
		return ErrMissingContentLength
	}

	lockName := slotKey(bucket.ID, key)
	l := s.locks.acquire(lockName)
	defer s.locks.release(lockName, l)

	staged, err := s.blobs.Stage(req.Body)
	if err != nil {
		if isTimeout(err) {
			return ErrRequestTimeout
		}
		// The net/http body reader reports a connection that closed
		// short of Content-Length as an unexpected EOF.
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return ErrIncompleteBody
		}
		return err
	}
	if staged.Size != req.ContentLength {
		staged.Discard()
		return ErrIncompleteBody
	}
	if header := strings.TrimSpace(req.Header.Get("Content-MD5")); header != "" {
		if !base64Pattern.MatchString(header) {
			staged.Discard()
			return ErrInvalidDigest
		}
		if base64.StdEncoding.EncodeToString(staged.Digest) != header {
			staged.Discard()
			return ErrBadDigest
		}
	}

	fi, err := s.blobs.Publish(staged, bucket.Name, path.Base(key))
	if err != nil {
		staged.Discard()
		return err
	}
	fi.MimeType = req.Header.Get("Content-Type")
	if fi.MimeType == "" {
		fi.MimeType = defaultContentType
	}
	fi.Disposition = req.Header.Get("Content-Disposition")

	// Anonymous writes through a public-write ACL attribute the slot
	// to the bucket's owner.
	ownerID := bucket.OwnerID
	if user != nil {
		ownerID = user.ID
	}
	meta := metadata(c)
	if len(meta) == 0 {
		meta = nil
	}

	slot, prevFile, err := s.tree.PutSlot(bucket.ID, key, ownerID, meta, nil, fi)
	if err != nil {
		s.blobs.Delete(fi)
		return err
	}
	s.blobs.Delete(prevFile)

	if err := s.tree.Grant(slot.ID, mask); err != nil {
		return err
	}

	log.Info().Str("bucket", bucket.Name).Str("key", key).
		Str("size", humanize.Bytes(uint64(staged.Size))).Msg("Object stored")

	c.Response().Header().Set("ETag", slot.ETag())
	return c.NoContent(http.StatusOK)
}

// headSlot handles HEAD /{bucket}/{key}.
func (s *Server) headSlot(c echo.Context) error {
	slot, err := s.loadSlot(c)
	if err != nil {
		return err
	}
	if err := checkConditions(c.Request(), slot); err != nil {
		return err
	}

	writeSlotHeaders(c, slot)
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(slot.Size(), 10))
	return c.NoContent(http.StatusOK)
}

// getSlot handles GET /{bucket}/{key}, including conditional headers
// and single-range reads.
func (s *Server) getSlot(c echo.Context) error {
	if c.Param("*") == "" {
		return s.getBucket(c)
	}
	if c.QueryParams().Has("torrent") || c.QueryParams().Has("acl") {
		return ErrNotImplemented
	}

	slot, err := s.loadSlot(c)
	if err != nil {
		return err
	}
	if err := checkConditions(c.Request(), slot); err != nil {
		return err
	}

	size := slot.Size()
	start, end := int64(0), size-1
	status := http.StatusOK
	if spec := c.Request().Header.Get("Range"); spec != "" {
		start, end, err = resolveRange(spec, size)
		if err != nil {
			return ErrNotImplemented
		}
		status = http.StatusPartialContent
	}

	writeSlotHeaders(c, slot)
	resp := c.Response()
	length := end - start + 1
	if length < 0 {
		length = 0
	}
	resp.Header().Set(echo.HeaderContentLength, strconv.FormatInt(length, 10))
	if status == http.StatusPartialContent {
		resp.Header().Set("Content-Range",
			"bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(size, 10))
	}

	if slot.File == nil {
		payload := slot.Payload
		if length > 0 {
			payload = payload[start : end+1]
		} else {
			payload = nil
		}
		resp.WriteHeader(status)
		_, err = resp.Write(payload)
		return err
	}

	rc, err := s.blobs.Read(slot.File, start, end)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("path", slot.File.Path).Msg("Failed to close backing file")
		}
	}()

	resp.WriteHeader(status)
	_, err = io.Copy(resp, rc)
	return err
}

// deleteSlot handles DELETE /{bucket}/{key}.
func (s *Server) deleteSlot(c echo.Context) error {
	key := c.Param("*")
	if key == "" {
		return s.deleteBucket(c)
	}
	bucket, err := s.findBucket(c)
	if err != nil {
		return err
	}
	if !acl.WritableBy(&bucket.Bit, currentUser(c), s.override) {
		return ErrAccessDenied
	}

	slot, err := s.tree.FindSlot(bucket.ID, key)
	if err != nil {
		if errors.Is(err, tree.ErrKeyNotFound) {
			return ErrNoSuchKey
		}
		return err
	}

	if err := s.tree.DeleteSlot(slot.ID); err != nil {
		if errors.Is(err, tree.ErrKeyNotFound) {
			return ErrNoSuchKey
		}
		return err
	}
	s.blobs.Delete(slot.File)

	log.Info().Str("bucket", bucket.Name).Str("key", key).Msg("Object deleted")
	return c.NoContent(http.StatusNoContent)
}

// loadSlot resolves bucket and key and applies the read gate against
// the slot's own ACL.
func (s *Server) loadSlot(c echo.Context) (*models.Slot, error) {
	bucket, err := s.findBucket(c)
	if err != nil {
		return nil, err
	}
	slot, err := s.tree.FindSlot(bucket.ID, c.Param("*"))
	if err != nil {
		if errors.Is(err, tree.ErrKeyNotFound) {
			return nil, ErrNoSuchKey
		}
		return nil, err
	}
	if !acl.ReadableBy(&slot.Bit, currentUser(c), s.override) {
		return nil, ErrAccessDenied
	}
	return slot, nil
}

// writeSlotHeaders emits the metadata headers shared by HEAD and GET.
func writeSlotHeaders(c echo.Context, slot *models.Slot) {
	h := c.Response().Header()
	h.Set("ETag", slot.ETag())
	h.Set("Last-Modified", slot.UpdatedAt.UTC().Format(http.TimeFormat))

	contentType := defaultContentType
	if slot.File != nil {
		if slot.File.MimeType != "" {
			contentType = slot.File.MimeType
		}
		if slot.File.Disposition != "" {
			h.Set("Content-Disposition", slot.File.Disposition)
		}
	}
	h.Set(echo.HeaderContentType, contentType)

	for name, value := range slot.Meta {
		h.Set("x-amz-meta-"+name, value)
	}
}

// checkConditions evaluates the conditional request headers in the
// fixed order If-Modified-Since, If-Unmodified-Since, If-Match,
// If-None-Match; the first condition that fires decides the response.
func checkConditions(req *http.Request, slot *models.Slot) error {
	etag := slot.ETag()
	// HTTP dates have second granularity
	modified := slot.UpdatedAt.Truncate(time.Second)

	if v := req.Header.Get("If-Modified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil && !modified.After(t) {
			return ErrNotModified
		}
	}
	if v := req.Header.Get("If-Unmodified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil && modified.After(t) {
			return ErrPreconditionFailed
		}
	}
	if v := req.Header.Get("If-Match"); v != "" && !etagMatch(v, etag) {
		return ErrPreconditionFailed
	}
	if v := req.Header.Get("If-None-Match"); v != "" && etagMatch(v, etag) {
		return ErrNotModified
	}
	return nil
}

// etagMatch reports whether any entry of a comma-separated ETag list
// matches.
func etagMatch(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// resolveRange maps a Range header onto inclusive [start, end] offsets
// within an object of the given size.
func resolveRange(spec string, size int64) (int64, int64, error) {
	m := bytesPattern.FindStringSubmatch(spec)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, 0, errors.New("unsupported range: " + spec)
	}

	if m[1] == "" {
		// bytes=-M: the last M bytes
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if n > size {
			n = size
		}
		if n == 0 {
			return 0, 0, errors.New("unsatisfiable range: " + spec)
		}
		return size - n, size - 1, nil
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end := size - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if end > size-1 {
			end = size - 1
		}
	}
	if start > end || start >= size {
		return 0, 0, errors.New("unsatisfiable range: " + spec)
	}
	return start, end, nil
}

// isTimeout reports whether a body read failed because the client
// stopped sending.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
