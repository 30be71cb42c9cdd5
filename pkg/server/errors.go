package server

import "net/http"

// Error is a protocol-level failure: a closed taxonomy of named codes
// serialized as the XML error body. Every request either fully applies
// its effect or fails with exactly one of these.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrAccessDenied = &Error{
		"AccessDenied", "Access Denied", http.StatusForbidden}
	ErrBadAuthentication = &Error{
		"BadAuthentication", "The request signature does not match the signature you provided", http.StatusUnauthorized}
	ErrBadDigest = &Error{
		"BadDigest", "The Content-MD5 you specified did not match what we received", http.StatusBadRequest}
	ErrBucketAlreadyExists = &Error{
		"BucketAlreadyExists", "The named bucket you tried to create already exists", http.StatusConflict}
	ErrBucketNotEmpty = &Error{
		"BucketNotEmpty", "The bucket you tried to delete is not empty", http.StatusConflict}
	ErrIncompleteBody = &Error{
		"IncompleteBody", "You did not provide the number of bytes specified by the Content-Length HTTP header", http.StatusBadRequest}
	ErrInternalError = &Error{
		"InternalError", "We encountered an internal error, please try again", http.StatusInternalServerError}
	ErrInvalidBucketName = &Error{
		"InvalidBucketName", "The specified bucket is not valid", http.StatusBadRequest}
	ErrInvalidDigest = &Error{
		"InvalidDigest", "The Content-MD5 you specified is not valid", http.StatusBadRequest}
	ErrMissingContentLength = &Error{
		"MissingContentLength", "You must provide the Content-Length HTTP header", http.StatusLengthRequired}
	ErrNoSuchBucket = &Error{
		"NoSuchBucket", "The specified bucket does not exist", http.StatusNotFound}
	ErrNoSuchKey = &Error{
		"NoSuchKey", "The specified key does not exist", http.StatusNotFound}
	ErrNotImplemented = &Error{
		"NotImplemented", "A header or query you provided implies functionality that is not implemented", http.StatusNotImplemented}
	ErrPreconditionFailed = &Error{
		"PreconditionFailed", "At least one of the preconditions you specified did not hold", http.StatusPreconditionFailed}
	ErrRequestTimeout = &Error{
		"RequestTimeout", "Your socket connection to the server was not read from or written to within the timeout period", http.StatusBadRequest}

	// ErrNotModified is a short-circuit, not a fault: 304 with no body.
	ErrNotModified = &Error{
		"NotModified", "Not Modified", http.StatusNotModified}
)
