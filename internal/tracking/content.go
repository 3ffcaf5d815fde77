package tracking

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/wire"
)

// ContentStatusFor maps a text content response to its status. Only 200, 304
// and 204 are accepted; ok is false for anything else.
func ContentStatusFor(statusCode int, transformStatus string) (status ContentStatus, ok bool) {
	switch statusCode {
	case http.StatusOK:
		return ContentOK, true
	case http.StatusNotModified:
		return ContentNotModified, true
	case http.StatusNoContent:
		switch transformStatus {
		case wire.TransformNoTransform:
			return ContentNoTransform, true
		case wire.TransformFailed:
			return ContentTransformFailed, true
		case wire.TransformNoContent:
			return ContentNoContent, true
		default:
			return ContentUnknown, true
		}
	default:
		return ContentUnknown, false
	}
}

// StatusCodeFor is the inverse of ContentStatusFor: the HTTP status and
// transform status header a server sends for status.
func StatusCodeFor(status ContentStatus) (statusCode int, transformStatus string) {
	switch status {
	case ContentOK:
		return http.StatusOK, ""
	case ContentNotModified:
		return http.StatusNotModified, ""
	case ContentNoTransform:
		return http.StatusNoContent, wire.TransformNoTransform
	case ContentTransformFailed:
		return http.StatusNoContent, wire.TransformFailed
	case ContentNoContent:
		return http.StatusNoContent, wire.TransformNoContent
	default:
		return http.StatusNoContent, ""
	}
}

// textContentFromResponse wraps resp. On an unexpected status the body is
// released before returning.
func textContentFromResponse(op, u string, resp *http.Response) (*TextContent, error) {
	transformStatus := resp.Header.Get(wire.HeaderTransformStatus)
	status, ok := ContentStatusFor(resp.StatusCode, transformStatus)
	if !ok {
		drainAndClose(resp.Body)
		return nil, &UnexpectedStatusError{Op: op, URL: u, StatusCode: resp.StatusCode}
	}

	tc := NewTextContent(status, resp.Body)
	tc.TransformStatus = transformStatus
	tc.TransformException = resp.Header.Get(wire.HeaderTransformException)
	tc.ContentEncoding = resp.Header.Get("Content-Encoding")
	if ms, err := strconv.ParseInt(resp.Header.Get(wire.HeaderTransformDuration), 10, 64); err == nil {
		d := time.Duration(ms) * time.Millisecond
		tc.TransformDuration = &d
	}
	return tc, nil
}
