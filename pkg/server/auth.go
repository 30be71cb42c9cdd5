package server

import (
	"errors"
	"time"

	"carpark/pkg/models"
	"carpark/pkg/sig"
	"carpark/pkg/tree"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	ctxUser      = "user"
	ctxMeta      = "meta"
	ctxRequestID = "request_id"
)

// authenticate runs every request through signature verification. The
// result is either an authenticated user or anonymous; presenting
// credentials that do not verify is a hard failure, while presenting
// none at all is allowed and leaves the ACL gates to decide.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		id := uuid.NewString()
		c.Set(ctxRequestID, id)
		c.Response().Header().Set("Server", serverName)
		c.Response().Header().Set("x-amz-request-id", id)

		_, meta := sig.AmzHeaders(req.Header)
		c.Set(ctxMeta, meta)

		creds := sig.Extract(req, time.Now())
		if creds == nil {
			return next(c)
		}

		user, err := s.tree.FindUserByAccessKey(creds.AccessKey)
		if err != nil {
			if errors.Is(err, tree.ErrUserNotFound) {
				return ErrBadAuthentication
			}
			return err
		}
		if !sig.Verify(user.SecretKey, sig.Canonical(req, creds), creds.Signature) {
			return ErrBadAuthentication
		}

		c.Set(ctxUser, user)
		return next(c)
	}
}

// currentUser returns the authenticated user, or nil for anonymous
// requests.
func currentUser(c echo.Context) *models.User {
	user, _ := c.Get(ctxUser).(*models.User)
	return user
}

// metadata returns the x-amz-meta-* headers of the request.
func metadata(c echo.Context) map[string]string {
	meta, _ := c.Get(ctxMeta).(map[string]string)
	return meta
}

func requestID(c echo.Context) string {
	id, _ := c.Get(ctxRequestID).(string)
	return id
}

// override adapts the tree's per-user ACL rows to the acl package's
// lookup contract.
func (s *Server) override(bitID, userID int64) (int, bool) {
	return s.tree.UserAccess(bitID, userID)
}
