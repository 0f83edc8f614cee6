// Package remote holds the HTTP plumbing shared by the clients of remote
// speech and conversation services: an instrumented [http.Client] and a
// request helper that maps failures onto the [types] error taxonomy.
package remote

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/jarvis/pkg/types"
)

// DefaultMaxBody caps response bodies read by [Do]. Reply payloads carry
// base64 speech, so the limit is generous.
const DefaultMaxBody = 64 << 20

// NewHTTPClient returns a client whose transport records OpenTelemetry spans
// and metrics for every request. A zero timeout leaves requests bounded only
// by their context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// StatusError describes a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned HTTP %d", e.Method, e.URL, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap lets errors.Is match [types.ErrService].
func (e *StatusError) Unwrap() error { return types.ErrService }

// Do sends req and returns the body of a 2xx response.
//
// A request that cannot be sent, or whose response never arrives, fails with
// [types.ErrNetwork]. A non-2xx status fails with a [*StatusError], which
// matches [types.ErrService]. Do never retries.
func Do(c *http.Client, req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %w", types.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: req.Method,
			URL:    req.URL.Redacted(),
			Code:   resp.StatusCode,
			Body:   snippet(body),
		}
	}
	return body, nil
}

// Malformed wraps a payload decoding failure as a [types.ErrService].
func Malformed(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: malformed %s", types.ErrService, what)
	}
	return fmt.Errorf("%w: malformed %s: %w", types.ErrService, what, err)
}

// IsStatus reports whether err carries a response with the given status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "…"
	}
	return s
}

// Form is a multipart/form-data body with one file part.
type Form struct {
	Body        *bytes.Buffer
	ContentType string
}

// NewForm builds a multipart body carrying data as the file part named field,
// followed by the non-empty extra fields in the order given (name, value,
// name, value, ...).
func NewForm(field, filename, contentType string, data []byte, extra ...string) (Form, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	fw, err := mw.CreatePart(h)
	if err != nil {
		return Form{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return Form{}, fmt.Errorf("write form file: %w", err)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] == "" {
			continue
		}
		if err := mw.WriteField(extra[i], extra[i+1]); err != nil {
			return Form{}, fmt.Errorf("write field %s: %w", extra[i], err)
		}
	}
	if err := mw.Close(); err != nil {
		return Form{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return Form{Body: &body, ContentType: mw.FormDataContentType()}, nil
}
