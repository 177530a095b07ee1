// Package search finds candidate source pages for a research query and
// fetches their readable text.
package search

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aristath/researcher/internal/resilience"
)

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.Status, e.Body)
}

// checkStatus turns an error response into a StatusError. Client errors
// other than 429 are permanent: retrying the same request cannot help.
func checkStatus(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := &StatusError{URL: url, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return resilience.Permanent(err)
	}
	return err
}
