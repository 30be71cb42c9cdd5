// Package sig implements AWS signature version 2 request signing:
// canonical string construction, HMAC-SHA1 signatures, and credential
// extraction from either the Authorization header or presigned-URL
// query parameters.
package sig

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // signature v2 is defined over SHA1
	"encoding/base64"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// subresources are the only query strings that participate in the
// canonical resource path.
var subresources = map[string]bool{
	"acl":     true,
	"torrent": true,
}

var authPattern = regexp.MustCompile(`^AWS (\w+):(.+)$`)

// Credentials carries the access key and signature presented by a
// request, from either source.
type Credentials struct {
	AccessKey string
	Signature string
	// Expires holds the raw Expires query value for presigned
	// requests; it replaces the Date in the canonical string.
	Expires string
}

// Extract pulls signing credentials out of a request. It returns nil
// when the request is anonymous: no Authorization header and no valid,
// unexpired presigned query parameters.
func Extract(r *http.Request, now time.Time) *Credentials {
	if m := authPattern.FindStringSubmatch(r.Header.Get("Authorization")); m != nil {
		return &Credentials{AccessKey: m[1], Signature: m[2]}
	}

	q := r.URL.Query()
	signature := q.Get("Signature")
	if signature == "" {
		return nil
	}
	expires, err := strconv.ParseInt(q.Get("Expires"), 10, 64)
	if err != nil || time.Unix(expires, 0).Before(now) {
		return nil
	}
	return &Credentials{
		AccessKey: q.Get("AWSAccessKeyId"),
		Signature: signature,
		Expires:   q.Get("Expires"),
	}
}

// AmzHeaders collects the x-amz-* headers of a request. It returns the
// sorted canonical "x-amz-name:value" lines and, separately, the user
// metadata carried by x-amz-meta-* headers keyed by the bare suffix.
// Repeated headers fold into one comma-joined value.
func AmzHeaders(h http.Header) (lines []string, meta map[string]string) {
	meta = map[string]string{}
	for name, values := range h {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "x-amz-") {
			continue
		}
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = strings.TrimSpace(v)
		}
		value := strings.Join(trimmed, ",")
		lines = append(lines, lower+":"+value)
		if suffix, ok := strings.CutPrefix(lower, "x-amz-meta-"); ok {
			meta[suffix] = value
		}
	}
	sort.Strings(lines)
	return lines, meta
}

// CanonicalResource returns the path to sign: the request path, with
// the query string appended only when it names a recognized
// subresource.
func CanonicalResource(path, rawQuery string) string {
	if subresources[rawQuery] {
		return path + "?" + rawQuery
	}
	return path
}

// Canonical builds the string that clients sign:
//
//	METHOD \n Content-MD5 \n Content-Type \n Date \n [amz lines] \n resource
//
// The date slot carries x-amz-date when present, the Date header
// otherwise, and the Expires value for presigned requests.
func Canonical(r *http.Request, creds *Credentials) string {
	lines, _ := AmzHeaders(r.Header)

	date := r.Header.Get("x-amz-date")
	if date == "" {
		date = r.Header.Get("Date")
	}
	if creds != nil && creds.Expires != "" {
		date = creds.Expires
	}

	parts := []string{
		r.Method,
		r.Header.Get("Content-MD5"),
		r.Header.Get("Content-Type"),
		date,
	}
	parts = append(parts, lines...)
	parts = append(parts, CanonicalResource(r.URL.Path, r.URL.RawQuery))
	return strings.Join(parts, "\n")
}

// Sign computes the base64 HMAC-SHA1 of message under key.
func Sign(key, message string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches Sign(key, message) without
// leaking timing information.
func Verify(key, message, signature string) bool {
	return hmac.Equal([]byte(Sign(key, message)), []byte(signature))
}

// HashPassword derives the stored password hash for a user record. The
// password keys the HMAC and the user's secret is the message, so the
// hash is invalidated if the secret is rotated.
func HashPassword(password, secret string) string {
	return Sign(password, secret)
}
