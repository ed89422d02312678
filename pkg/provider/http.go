package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response body lands in error
// messages and logs.
const maxErrorBody = 512

// newHTTPClient returns the client the adapters share. No client-level
// timeout: per-call deadlines come from the caller's context, and image
// generation legitimately runs for minutes on cold weights.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 0}
}

// postJSON sends payload to url and decodes the response into out.
// Non-200 responses become errors carrying the status code and a body
// excerpt, which is what Classify pattern-matches on.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, trimBody(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func trimBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

// elapsedMS renders a duration for log lines as whole milliseconds.
func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
