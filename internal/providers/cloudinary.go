package providers

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultUploadBaseURL   = "https://api.cloudinary.com/v1_1"
	defaultDeliveryBaseURL = "https://res.cloudinary.com"
)

// UploadResult is the slice of Cloudinary's upload response we use.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

// CloudinaryClient performs signed uploads and builds delivery URLs with
// transformation effects (background removal, generative object removal).
type CloudinaryClient struct {
	cloudName       string
	apiKey          string
	apiSecret       string
	uploadBaseURL   string
	deliveryBaseURL string
	httpClient      *http.Client
}

func NewCloudinaryClient(cloudName, apiKey, apiSecret string) *CloudinaryClient {
	return &CloudinaryClient{
		cloudName:       cloudName,
		apiKey:          apiKey,
		apiSecret:       apiSecret,
		uploadBaseURL:   defaultUploadBaseURL,
		deliveryBaseURL: defaultDeliveryBaseURL,
		httpClient:      &http.Client{},
	}
}

// UploadBytes uploads image data as a base64 data URI. A non-empty
// transformation is applied to the incoming image before it is stored.
func (c *CloudinaryClient) UploadBytes(ctx context.Context, data []byte, transformation string) (UploadResult, error) {
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	return c.upload(ctx, dataURI, transformation)
}

// UploadFile uploads an image from a local path.
func (c *CloudinaryClient) UploadFile(ctx context.Context, path, transformation string) (UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to read file: %w", err)
	}
	return c.UploadBytes(ctx, data, transformation)
}

// URL builds a delivery URL applying the transformation to a stored asset.
// Effect strings follow Cloudinary's URL syntax, e.g. "e_gen_remove:chair".
func (c *CloudinaryClient) URL(publicID, transformation string) string {
	if transformation == "" {
		return fmt.Sprintf("%s/%s/image/upload/%s", c.deliveryBaseURL, c.cloudName, publicID)
	}
	return fmt.Sprintf("%s/%s/image/upload/%s/%s", c.deliveryBaseURL, c.cloudName, transformation, publicID)
}

func (c *CloudinaryClient) upload(ctx context.Context, file, transformation string) (UploadResult, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if transformation != "" {
		params["transformation"] = transformation
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	fields := map[string]string{
		"file":      file,
		"api_key":   c.apiKey,
		"signature": c.sign(params),
	}
	for k, v := range params {
		fields[k] = v
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return UploadResult{}, fmt.Errorf("failed to build form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("failed to build form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/image/upload", c.uploadBaseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &form)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return UploadResult{}, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return UploadResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.SecureURL == "" {
		return UploadResult{}, fmt.Errorf("upload response missing secure_url")
	}
	return result, nil
}

// sign computes the Cloudinary API signature: SHA-1 over the
// alphabetically sorted parameter string followed by the API secret.
func (c *CloudinaryClient) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}
