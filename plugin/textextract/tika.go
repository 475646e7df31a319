package textextract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// TikaClient extracts text from PDF/Office documents via an Apache Tika
// server.
type TikaClient struct {
	serverURL  string
	httpClient *http.Client
}

// NewTikaClient creates a Tika client against the given server URL.
func NewTikaClient(serverURL string, timeout time.Duration) *TikaClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TikaClient{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Extract sends the document to the Tika server and returns the plain text
// plus whatever metadata the server reports.
func (c *TikaClient) Extract(ctx context.Context, data []byte, contentType string) (string, map[string]string, error) {
	if c.serverURL == "" {
		return "", nil, errors.New("no tika server configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, errors.Wrap(err, "tika server request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", nil, errors.Errorf("tika server returned status %d: %s", resp.StatusCode, string(body))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to read response")
	}

	// Metadata is best effort; extraction succeeds without it.
	metadata, err := c.metadata(ctx, data, contentType)
	if err != nil {
		metadata = nil
	}
	return string(text), metadata, nil
}

// IsAvailable checks whether the Tika server responds.
func (c *TikaClient) IsAvailable(ctx context.Context) bool {
	if c.serverURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *TikaClient) metadata(ctx context.Context, data []byte, contentType string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/meta", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("metadata request returned status %d", resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for k, v := range raw {
		if str, ok := v.(string); ok {
			result[k] = str
		} else if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
			if str, ok := arr[0].(string); ok {
				result[k] = str
			}
		}
	}
	return result, nil
}
