package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// ErrCreditsExhausted marks the provider's out-of-credits failure mode so
// the API boundary can map it to 402 instead of a generic 500.
var ErrCreditsExhausted = errors.New("provider credits exhausted")

// ClipDropClient calls the ClipDrop text-to-image endpoint and returns the
// raw image bytes.
type ClipDropClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClipDropClient(url, apiKey string) *ClipDropClient {
	return &ClipDropClient{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// Generate synthesizes an image for the prompt.
func (c *ClipDropClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, &form)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// ClipDrop reports billing exhaustion in the error body.
		var errBody struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(body, &errBody); jsonErr == nil {
			if resp.StatusCode == http.StatusPaymentRequired || strings.Contains(errBody.Error, "Not enough credits") {
				return nil, fmt.Errorf("%w: %s", ErrCreditsExhausted, errBody.Error)
			}
			if errBody.Error != "" {
				return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, errBody.Error)
			}
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
