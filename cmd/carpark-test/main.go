// carpark-test is an end-to-end smoke test for a running carpark
// server: it signs real requests, walks a bucket through its life
// cycle, and verifies the listing, range and conditional semantics.
package main

import (
	"bytes"
	"crypto/md5" //nolint:gosec // the wire protocol uses MD5
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"carpark/pkg/sig"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultServerURL = "http://127.0.0.1:3002"

type config struct {
	serverURL string
	accessKey string
	secretKey string
	bucket    string
}

type client struct {
	cfg  config
	http *retryablehttp.Client
}

type listBucketResult struct {
	XMLName        xml.Name `xml:"ListBucketResult"`
	IsTruncated    bool     `xml:"IsTruncated"`
	Keys           []string `xml:"Contents>Key"`
	CommonPrefixes []string `xml:"CommonPrefixes>Prefix"`
}

func main() {
	cfg := config{}
	flag.StringVar(&cfg.serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&cfg.accessKey, "access", "", "Access key")
	flag.StringVar(&cfg.secretKey, "secret", "", "Secret key")
	flag.StringVar(&cfg.bucket, "bucket", "carpark-smoke", "Bucket name to use")
	flag.Parse()

	if cfg.accessKey == "" || cfg.secretKey == "" {
		fmt.Fprintln(os.Stderr, "both -access and -secret are required")
		os.Exit(2)
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.Logger = nil

	c := &client{cfg: cfg, http: httpClient}

	failed := 0
	for _, step := range []struct {
		name string
		run  func() error
	}{
		{"create bucket", c.createBucket},
		{"put objects", c.putObjects},
		{"get object", c.getObject},
		{"range get", c.rangeGet},
		{"conditional get", c.conditionalGet},
		{"list with delimiter", c.listDelimiter},
		{"delete objects", c.deleteObjects},
		{"delete bucket", c.deleteBucket},
	} {
		if err := step.run(); err != nil {
			fmt.Printf("FAIL %-20s %v\n", step.name, err)
			failed++
			continue
		}
		fmt.Printf("ok   %s\n", step.name)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// do signs and sends one request, returning the response body.
func (c *client) do(method, path string, body []byte, headers map[string]string) (*http.Response, []byte, error) {
	req, err := http.NewRequest(method, c.cfg.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	canonical := sig.Canonical(req, nil)
	req.Header.Set("Authorization",
		fmt.Sprintf("AWS %s:%s", c.cfg.accessKey, sig.Sign(c.cfg.secretKey, canonical)))

	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(retryReq)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, data, nil
}

func (c *client) expect(method, path string, body []byte, headers map[string]string, want int) (*http.Response, []byte, error) {
	resp, data, err := c.do(method, path, body, headers)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != want {
		return nil, nil, fmt.Errorf("%s %s: got %d, want %d: %s", method, path, resp.StatusCode, want, data)
	}
	return resp, data, nil
}

func (c *client) createBucket() error {
	_, _, err := c.expect(http.MethodPut, "/"+c.cfg.bucket, nil,
		map[string]string{"x-amz-acl": "public-read"}, http.StatusOK)
	return err
}

func (c *client) putObjects() error {
	for key, payload := range map[string]string{
		"/photos/1.jpg":    "first photo",
		"/photos/2.jpg":    "second photo",
		"/docs/readme.txt": "0123456789abcdefghij",
	} {
		sum := md5.Sum([]byte(payload)) //nolint:gosec // see import comment
		_, _, err := c.expect(http.MethodPut, "/"+c.cfg.bucket+key, []byte(payload),
			map[string]string{
				"Content-MD5":     base64.StdEncoding.EncodeToString(sum[:]),
				"x-amz-meta-test": "smoke",
			}, http.StatusOK)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *client) getObject() error {
	resp, data, err := c.expect(http.MethodGet, "/"+c.cfg.bucket+"/docs/readme.txt", nil, nil, http.StatusOK)
	if err != nil {
		return err
	}
	if string(data) != "0123456789abcdefghij" {
		return fmt.Errorf("payload mismatch: %q", data)
	}
	sum := md5.Sum(data) //nolint:gosec // see import comment
	want := fmt.Sprintf("%q", hex.EncodeToString(sum[:]))
	if got := resp.Header.Get("ETag"); got != want {
		return fmt.Errorf("etag mismatch: got %s, want %s", got, want)
	}
	if got := resp.Header.Get("x-amz-meta-test"); got != "smoke" {
		return fmt.Errorf("metadata not echoed: %q", got)
	}
	return nil
}

func (c *client) rangeGet() error {
	resp, data, err := c.expect(http.MethodGet, "/"+c.cfg.bucket+"/docs/readme.txt", nil,
		map[string]string{"Range": "bytes=10-19"}, http.StatusPartialContent)
	if err != nil {
		return err
	}
	if string(data) != "abcdefghij" {
		return fmt.Errorf("range payload mismatch: %q", data)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 10-19/20" {
		return fmt.Errorf("content-range mismatch: %q", got)
	}

	_, data, err = c.expect(http.MethodGet, "/"+c.cfg.bucket+"/docs/readme.txt", nil,
		map[string]string{"Range": "bytes=-5"}, http.StatusPartialContent)
	if err != nil {
		return err
	}
	if string(data) != "fghij" {
		return fmt.Errorf("suffix range mismatch: %q", data)
	}
	return nil
}

func (c *client) conditionalGet() error {
	resp, _, err := c.expect(http.MethodGet, "/"+c.cfg.bucket+"/docs/readme.txt", nil, nil, http.StatusOK)
	if err != nil {
		return err
	}
	etag := resp.Header.Get("ETag")

	_, _, err = c.expect(http.MethodGet, "/"+c.cfg.bucket+"/docs/readme.txt", nil,
		map[string]string{"If-None-Match": etag}, http.StatusNotModified)
	if err != nil {
		return err
	}
	_, _, err = c.expect(http.MethodGet, "/"+c.cfg.bucket+"/docs/readme.txt", nil,
		map[string]string{"If-Match": `"0000"`}, http.StatusPreconditionFailed)
	return err
}

func (c *client) listDelimiter() error {
	_, data, err := c.expect(http.MethodGet, "/"+c.cfg.bucket+"?delimiter=%2F", nil, nil, http.StatusOK)
	if err != nil {
		return err
	}
	var result listBucketResult
	if err := xml.Unmarshal(data, &result); err != nil {
		return err
	}
	if len(result.CommonPrefixes) != 1 || result.CommonPrefixes[0] != "photos/" {
		return fmt.Errorf("common prefixes mismatch: %v", result.CommonPrefixes)
	}
	if len(result.Keys) != 1 || result.Keys[0] != "docs/readme.txt" {
		return fmt.Errorf("contents mismatch: %v", result.Keys)
	}
	return nil
}

func (c *client) deleteObjects() error {
	for _, key := range []string{"/photos/1.jpg", "/photos/2.jpg", "/docs/readme.txt"} {
		if _, _, err := c.expect(http.MethodDelete, "/"+c.cfg.bucket+key, nil, nil, http.StatusNoContent); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) deleteBucket() error {
	_, _, err := c.expect(http.MethodDelete, "/"+c.cfg.bucket, nil, nil, http.StatusNoContent)
	return err
}
