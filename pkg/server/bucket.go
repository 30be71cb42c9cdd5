package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carpark/pkg/acl"
	"carpark/pkg/log"
	"carpark/pkg/models"
	"carpark/pkg/tree"

	"github.com/labstack/echo/v4"
)

// requestedACL resolves the access mask a request asks for. XML ACL
// documents (the ?acl subresource) are not supported; only the
// x-amz-acl canned names are, falling back to private.
func requestedACL(c echo.Context) (int, error) {
	if c.QueryParams().Has("acl") {
		return 0, ErrNotImplemented
	}
	return acl.Mask(c.Request().Header.Get("x-amz-acl")), nil
}

// putBucket handles PUT /{bucket}. Creation requires an authenticated
// caller. Re-creating an owned bucket re-grants the requested ACL but
// still reports BucketAlreadyExists; the ACL change is visible despite
// the conflict.
func (s *Server) putBucket(c echo.Context) error {
	user := currentUser(c)
	if user == nil {
		return ErrAccessDenied
	}
	mask, err := requestedACL(c)
	if err != nil {
		return err
	}

	name := c.Param("bucket")
	bucket, err := s.tree.FindBucket(name)
	switch {
	case err == nil:
		if !acl.OwnedBy(&bucket.Bit, user) {
			return ErrAccessDenied
		}
		if err := s.tree.Grant(bucket.ID, mask); err != nil {
			return err
		}
		return ErrBucketAlreadyExists

	case errors.Is(err, tree.ErrBucketNotFound):
		if _, err := s.tree.CreateBucket(name, user.ID, mask); err != nil {
			switch {
			case errors.Is(err, tree.ErrBucketExists):
				return ErrBucketAlreadyExists
			case errors.Is(err, tree.ErrInvalidName):
				return ErrInvalidBucketName
			}
			return err
		}
		log.Info().Str("bucket", name).Str("owner", user.Login).
			Str("acl", acl.Describe(mask)).Msg("Bucket created")
		c.Response().Header().Set("Location", "/"+name)
		return c.NoContent(http.StatusOK)

	default:
		return err
	}
}

// deleteBucket handles DELETE /{bucket}: owner only, and only when
// empty.
func (s *Server) deleteBucket(c echo.Context) error {
	bucket, err := s.findBucket(c)
	if err != nil {
		return err
	}
	if !acl.OwnedBy(&bucket.Bit, currentUser(c)) {
		return ErrAccessDenied
	}

	if err := s.tree.DeleteBucket(bucket.ID); err != nil {
		switch {
		case errors.Is(err, tree.ErrBucketNotEmpty):
			return ErrBucketNotEmpty
		case errors.Is(err, tree.ErrBucketNotFound):
			return ErrNoSuchBucket
		}
		return err
	}

	log.Info().Str("bucket", bucket.Name).Msg("Bucket deleted")
	return c.NoContent(http.StatusNoContent)
}

// getBucket handles GET /{bucket}: the object listing with prefix,
// marker, max-keys and delimiter semantics.
func (s *Server) getBucket(c echo.Context) error {
	bucket, err := s.findBucket(c)
	if err != nil {
		return err
	}
	if !acl.ReadableBy(&bucket.Bit, currentUser(c), s.override) {
		return ErrAccessDenied
	}
	if c.QueryParams().Has("torrent") || c.QueryParams().Has("acl") {
		return ErrNotImplemented
	}

	prefix := c.QueryParam("prefix")
	marker := c.QueryParam("marker")
	delimiter := c.QueryParam("delimiter")
	maxKeys := tree.DefaultMaxKeys
	if raw := c.QueryParam("max-keys"); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			maxKeys = n
		}
	}

	slots, total, err := s.tree.ListSlots(bucket.ID, prefix, marker, maxKeys)
	if err != nil {
		return err
	}

	var prefixes []string
	if delimiter != "" {
		slots, prefixes = groupByDelimiter(slots, prefix, delimiter)
	}

	result := listBucketResult{
		Xmlns:       xmlns,
		Name:        bucket.Name,
		Prefix:      prefix,
		Marker:      marker,
		Delimiter:   delimiter,
		MaxKeys:     maxKeys,
		IsTruncated: total > len(slots),
	}
	for i := range slots {
		slot := &slots[i]
		result.Contents = append(result.Contents, contentsResult{
			Key:          slot.Name,
			LastModified: slot.UpdatedAt.UTC().Format(time.RFC3339),
			ETag:         slot.ETag(),
			Size:         slot.Size(),
			StorageClass: "STANDARD",
			Owner:        ownerResult{ID: slot.Owner.AccessKey, DisplayName: slot.Owner.Login},
		})
	}
	for _, p := range prefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, commonPrefixResult{Prefix: p})
	}

	return c.XML(http.StatusOK, result)
}

// findBucket resolves the :bucket path parameter.
func (s *Server) findBucket(c echo.Context) (*models.Bucket, error) {
	bucket, err := s.tree.FindBucket(c.Param("bucket"))
	if err != nil {
		if errors.Is(err, tree.ErrBucketNotFound) {
			return nil, ErrNoSuchBucket
		}
		return nil, err
	}
	return bucket, nil
}

// groupByDelimiter implements the common-prefix grouping: each key is
// grouped by the segment of (key minus prefix) up to and including the
// first delimiter. Groups with more than one member collapse into a
// CommonPrefixes entry (prefix + group key) and leave the Contents
// list; singleton groups stay as ordinary Contents entries.
func groupByDelimiter(slots []models.Slot, prefix, delimiter string) ([]models.Slot, []string) {
	groupCounts := map[string]int{}
	groupOf := make([]string, len(slots))
	var order []string

	for i := range slots {
		remainder := strings.TrimPrefix(slots[i].Name, prefix)
		group := strings.SplitN(remainder, delimiter, 2)[0] + delimiter
		groupOf[i] = group
		if groupCounts[group] == 0 {
			order = append(order, group)
		}
		groupCounts[group]++
	}

	var kept []models.Slot
	var prefixes []string
	for i := range slots {
		if groupCounts[groupOf[i]] == 1 {
			kept = append(kept, slots[i])
		}
	}
	for _, group := range order {
		if groupCounts[group] > 1 {
			prefixes = append(prefixes, prefix+group)
		}
	}
	return kept, prefixes
}
