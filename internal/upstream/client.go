// Package upstream talks to the external chat completion and image
// generation APIs.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rohits-web03/nimbus/internal/apperr"
)

// maxErrorBody bounds how much of a failed response is kept for logs.
const maxErrorBody = 2048

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// StatusError is the cause attached to an upstream error for a non-OK reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return e.Body }

// statusError turns an unexpected response into an upstream error carrying
// the start of the body.
func statusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return apperr.Upstream(
		fmt.Sprintf("%s API error %d", service, resp.StatusCode),
		&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))},
	)
}

// Transient reports whether a call that failed with err is worth repeating:
// the request never got an answer, or the server answered 429 or 5xx.
func Transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func decode(service string, r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return apperr.Upstream(fmt.Sprintf("%s API returned invalid JSON", service), err)
	}
	return nil
}
