package sig

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// SigTestSuite tests canonicalization and signing.
type SigTestSuite struct {
	suite.Suite
}

// TestSignKnownVector checks Sign against the RFC 2202 HMAC-SHA1 test
// vector.
func (s *SigTestSuite) TestSignKnownVector() {
	signature := Sign("Jefe", "what do ya want for nothing?")
	raw, err := base64.StdEncoding.DecodeString(signature)
	s.Require().NoError(err)
	s.Equal("effcdf6ae5eb2fa2d27416d5f184df9c259a7c79", hex.EncodeToString(raw))
}

// TestSignAWSExample checks the published S3 signature v2 "Object GET"
// example: secret and canonical string from the AWS developer guide.
func (s *SigTestSuite) TestSignAWSExample() {
	secret := "uV3F3YluFJax1cknvbcGwgjvx4QpvB+leU8dUj2o"
	canonical := "GET\n\n\nTue, 27 Mar 2007 19:36:42 +0000\n/johnsmith/photos/puppy.jpg"
	s.Equal("bWq2s1WEIj+Ydj0vQ697zp+IXMU=", Sign(secret, canonical))
}

// TestSignDeterministic tests that signing is stable and verifiable.
func (s *SigTestSuite) TestSignDeterministic() {
	s.Equal(Sign("secret", "message"), Sign("secret", "message"))
	s.True(Verify("secret", "message", Sign("secret", "message")))
	s.False(Verify("secret", "message", Sign("other", "message")))
}

// TestCanonicalBasic tests the canonical string layout.
func (s *SigTestSuite) TestCanonicalBasic() {
	req := s.newRequest(http.MethodPut, "/bucket/key", nil)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Content-MD5", "md5value")
	req.Header.Set("Date", "Thu, 17 Nov 2005 18:49:58 GMT")

	s.Equal("PUT\nmd5value\ntext/plain\nThu, 17 Nov 2005 18:49:58 GMT\n/bucket/key",
		Canonical(req, nil))
}

// TestCanonicalAmzHeaders tests sorted x-amz header lines and the
// x-amz-date override.
func (s *SigTestSuite) TestCanonicalAmzHeaders() {
	req := s.newRequest(http.MethodGet, "/bucket", nil)
	req.Header.Set("Date", "ignored-date")
	req.Header.Set("x-amz-date", "Thu, 17 Nov 2005 18:49:58 GMT")
	req.Header.Set("x-amz-meta-color", " blue ")
	req.Header.Set("x-amz-acl", "public-read")

	s.Equal("GET\n\n\nThu, 17 Nov 2005 18:49:58 GMT\n"+
		"x-amz-acl:public-read\n"+
		"x-amz-date:Thu, 17 Nov 2005 18:49:58 GMT\n"+
		"x-amz-meta-color:blue\n"+
		"/bucket",
		Canonical(req, nil))
}

// TestCanonicalResource tests that only recognized subresources keep
// the query string.
func (s *SigTestSuite) TestCanonicalResource() {
	s.Equal("/bucket?acl", CanonicalResource("/bucket", "acl"))
	s.Equal("/bucket?torrent", CanonicalResource("/bucket", "torrent"))
	s.Equal("/bucket", CanonicalResource("/bucket", "prefix=a&max-keys=10"))
	s.Equal("/bucket", CanonicalResource("/bucket", ""))
}

// TestAmzHeadersMeta tests metadata extraction.
func (s *SigTestSuite) TestAmzHeadersMeta() {
	h := http.Header{}
	h.Set("X-Amz-Meta-Color", "red")
	h.Set("X-Amz-Acl", "private")
	h.Set("Content-Type", "text/plain")

	lines, meta := AmzHeaders(h)
	s.Equal([]string{"x-amz-acl:private", "x-amz-meta-color:red"}, lines)
	s.Equal(map[string]string{"color": "red"}, meta)
}

// TestAmzHeadersRepeated tests that repeated headers fold into one
// comma-joined canonical line.
func (s *SigTestSuite) TestAmzHeadersRepeated() {
	h := http.Header{}
	h.Add("X-Amz-Meta-Tag", "one")
	h.Add("X-Amz-Meta-Tag", " two ")

	lines, meta := AmzHeaders(h)
	s.Equal([]string{"x-amz-meta-tag:one,two"}, lines)
	s.Equal(map[string]string{"tag": "one,two"}, meta)
}

// TestExtractAuthorizationHeader tests header credentials.
func (s *SigTestSuite) TestExtractAuthorizationHeader() {
	req := s.newRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "AWS AKID123:c2lnbmF0dXJl")

	creds := Extract(req, time.Now())
	s.Require().NotNil(creds)
	s.Equal("AKID123", creds.AccessKey)
	s.Equal("c2lnbmF0dXJl", creds.Signature)
	s.Empty(creds.Expires)
}

// TestExtractPresigned tests presigned query credentials and expiry.
func (s *SigTestSuite) TestExtractPresigned() {
	now := time.Now()
	future := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)
	past := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)

	req := s.newRequest(http.MethodGet, "/bucket/key", url.Values{
		"AWSAccessKeyId": {"AKID123"},
		"Signature":      {"sigvalue"},
		"Expires":        {future},
	})
	creds := Extract(req, now)
	s.Require().NotNil(creds)
	s.Equal("AKID123", creds.AccessKey)
	s.Equal(future, creds.Expires)

	// An expired presigned URL is treated as anonymous
	req = s.newRequest(http.MethodGet, "/bucket/key", url.Values{
		"AWSAccessKeyId": {"AKID123"},
		"Signature":      {"sigvalue"},
		"Expires":        {past},
	})
	s.Nil(Extract(req, now))
}

// TestExtractAnonymous tests that bare requests carry no credentials.
func (s *SigTestSuite) TestExtractAnonymous() {
	s.Nil(Extract(s.newRequest(http.MethodGet, "/", nil), time.Now()))
}

// TestCanonicalPresignedUsesExpires tests the Expires substitution.
func (s *SigTestSuite) TestCanonicalPresignedUsesExpires() {
	req := s.newRequest(http.MethodGet, "/bucket/key", nil)
	req.Header.Set("Date", "header-date")

	creds := &Credentials{AccessKey: "AKID", Signature: "sig", Expires: "1234567890"}
	s.Equal("GET\n\n\n1234567890\n/bucket/key", Canonical(req, creds))
}

// TestHashPassword tests that the hash binds password and secret.
func (s *SigTestSuite) TestHashPassword() {
	h := HashPassword("hunter2", "secret")
	s.Equal(h, HashPassword("hunter2", "secret"))
	s.NotEqual(h, HashPassword("hunter2", "rotated"))
	s.NotEqual(h, HashPassword("hunter3", "secret"))
}

func (s *SigTestSuite) newRequest(method, path string, query url.Values) *http.Request {
	target := path
	if query != nil {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, target, nil)
	s.Require().NoError(err)
	return req
}

func TestSigTestSuite(t *testing.T) {
	suite.Run(t, new(SigTestSuite))
}
