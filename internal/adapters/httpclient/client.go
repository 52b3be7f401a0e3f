// Package httpclient holds the JSON-over-HTTP plumbing shared by the
// inference gateways: client construction with separate connect and overall
// timeouts, and translation of transport failures into domain errors.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// maxErrorBody bounds how much of a failed response body ends up in error messages.
const maxErrorBody = 2048

// Timeouts configures a client.
type Timeouts struct {
	Connect time.Duration
	Overall time.Duration
}

// New builds an http.Client honoring both timeouts.
func New(t Timeouts) *http.Client {
	dialer := &net.Dialer{Timeout: t.Connect}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Transport: transport,
		Timeout:   t.Overall,
	}
}

// JoinURL joins a base URL and a path without doubling slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// PostJSON sends body as JSON to url and decodes a 2xx response into out.
// The label prefixes error messages ("ollama", "worker").
func PostJSON(ctx context.Context, client *http.Client, label, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return core.ErrValidation(core.CodeInvalidRequest, "encoding request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return core.ErrValidation(core.CodeInvalidRequest, "building request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	return Do(client, label, req, out)
}

// GetJSON issues a GET and decodes a 2xx response into out.
func GetJSON(ctx context.Context, client *http.Client, label, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.ErrValidation(core.CodeInvalidRequest, "building request").WithCause(err)
	}
	return Do(client, label, req, out)
}

// Do executes req and decodes the response, classifying failures.
func Do(client *http.Client, label string, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return Classify(label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return core.NewGenerationError(core.ErrCatExecution,
			fmt.Sprintf("%s error: %s", label, msg), resp.StatusCode, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewGenerationError(core.ErrCatExecution,
			fmt.Sprintf("%s returned an unreadable response", label), resp.StatusCode, err)
	}
	return nil
}

// Classify turns a transport error into a timeout or network domain error.
func Classify(label string, err error) error {
	if isTimeout(err) {
		return core.NewGenerationError(core.ErrCatTimeout,
			fmt.Sprintf("%s timeout: %v", label, err), 0, err)
	}
	if errors.Is(err, context.Canceled) {
		return core.NewGenerationError(core.ErrCatExecution,
			fmt.Sprintf("%s request canceled", label), 0, err)
	}
	return core.NewGenerationError(core.ErrCatNetwork,
		fmt.Sprintf("%s connection error: %v", label, err), 0, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
