package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	sculpteoRateLimit = 1 // requests per second
	sculpteoRateBurst = 3

	sculpteoMaxRetryElapsed = 30 * time.Second
)

// Sculpteo talks to the Sculpteo design API: multipart design upload and
// price lookup by design uuid.
type Sculpteo struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewSculpteo creates a Sculpteo API client
func NewSculpteo(baseURL string) *Sculpteo {
	return &Sculpteo{
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(sculpteoRateLimit), sculpteoRateBurst),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Sculpteo) Name() string {
	return "SCULPTEO"
}

// Upload pushes the design file to Sculpteo. The response carries the uuid
// used afterwards for pricing.
func (c *Sculpteo) Upload(ctx context.Context, filename string, data []byte, progress ProgressFunc) (*UploadResult, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	// Form fields the upload endpoint requires alongside the file
	for field, value := range map[string]string{
		"name":  filename,
		"share": "0",
	} {
		if err := writer.WriteField(field, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	uploadURL := fmt.Sprintf("%s/upload_design/a/3D/", c.baseURL)
	raw, err := c.do(ctx, func() (*http.Request, error) {
		reader := newProgressReader(bytes.NewReader(body.Bytes()), int64(body.Len()), progress)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, reader)
		if err != nil {
			return nil, err
		}
		req.ContentLength = int64(body.Len())
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		UUID string `json:"design_id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("sculpteo: unexpected upload response: %w", err)
	}
	if parsed.UUID == "" {
		return nil, fmt.Errorf("sculpteo: upload response carries no design id")
	}

	return &UploadResult{ProviderModelID: parsed.UUID, Raw: raw}, nil
}

// Quote fetches the price of an uploaded design by uuid.
func (c *Sculpteo) Quote(ctx context.Context, providerModelID string, params QuoteParams) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("uuid", providerModelID)
	if params.Quantity > 0 {
		values.Set("quantity", fmt.Sprintf("%d", params.Quantity))
	}
	if params.Scale > 0 {
		values.Set("scale", fmt.Sprintf("%g", params.Scale))
	}
	if params.Unit != "" {
		values.Set("unit", params.Unit)
	}
	if params.Currency != "" {
		values.Set("currency", params.Currency)
	}
	if params.Material != "" {
		values.Set("productname", params.Material)
	}

	priceURL := fmt.Sprintf("%s/api/design/3D/price_by_uuid/?%s", c.baseURL, values.Encode())
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, priceURL, nil)
	})
}

// do executes the request with retry on transient failures, rebuilding the
// request per attempt.
func (c *Sculpteo) do(ctx context.Context, build func() (*http.Request, error)) (json.RawMessage, error) {
	var result json.RawMessage

	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("sculpteo: server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("sculpteo: request rejected with %d: %s", resp.StatusCode, data))
		}

		result = data
		return nil
	}

	strategy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(sculpteoMaxRetryElapsed)), ctx)
	if err := backoff.Retry(operation, strategy); err != nil {
		return nil, err
	}
	return result, nil
}
