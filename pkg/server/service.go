package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// listBuckets handles GET /: the buckets owned by the caller.
// Anonymous callers are rejected.
func (s *Server) listBuckets(c echo.Context) error {
	user := currentUser(c)
	if user == nil {
		return ErrAccessDenied
	}

	buckets, err := s.tree.ListBuckets(user.ID)
	if err != nil {
		return err
	}

	result := listAllMyBucketsResult{
		Xmlns: xmlns,
		Owner: ownerResult{ID: user.AccessKey, DisplayName: user.Login},
	}
	for _, b := range buckets {
		result.Buckets = append(result.Buckets, bucketResult{
			Name:         b.Name,
			CreationDate: b.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.XML(http.StatusOK, result)
}
