package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	// i.materialise sandbox allows a modest request rate
	imatRateLimit = 2 // requests per second
	imatRateBurst = 4

	imatMaxRetryElapsed = 30 * time.Second
)

// IMaterialise talks to the i.materialise web API: model upload through the
// tool endpoint, pricing through the pricing endpoint.
type IMaterialise struct {
	baseURL     string
	toolID      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewIMaterialise creates an i.materialise API client
func NewIMaterialise(baseURL, toolID string) *IMaterialise {
	return &IMaterialise{
		baseURL:     baseURL,
		toolID:      toolID,
		rateLimiter: rate.NewLimiter(rate.Limit(imatRateLimit), imatRateBurst),
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

func (c *IMaterialise) Name() string {
	return "IMATERIALISE"
}

// Upload pushes the model file to the i.materialise tool endpoint. Progress
// callbacks are driven by how much of the request body has been consumed.
func (c *IMaterialise) Upload(ctx context.Context, filename string, data []byte, progress ProgressFunc) (*UploadResult, error) {
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
	if err := writer.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/tool/%s/model", c.baseURL, c.toolID)
	raw, err := c.do(ctx, func() (*http.Request, error) {
		reader := newProgressReader(bytes.NewReader(body.Bytes()), int64(body.Len()), progress)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
		if err != nil {
			return nil, err
		}
		req.ContentLength = int64(body.Len())
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	// The interesting field is the model UUID assigned by i.materialise.
	var parsed struct {
		ModelID string `json:"modelID"`
		UUID    string `json:"uuid"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("imaterialise: unexpected upload response: %w", err)
	}
	providerID := parsed.ModelID
	if providerID == "" {
		providerID = parsed.UUID
	}
	if providerID == "" {
		return nil, fmt.Errorf("imaterialise: upload response carries no model id")
	}

	return &UploadResult{ProviderModelID: providerID, Raw: raw}, nil
}

// Quote requests a price for a previously uploaded model.
func (c *IMaterialise) Quote(ctx context.Context, providerModelID string, params QuoteParams) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	// i.materialise pricing expects a list of model entries
	payload := map[string]any{
		"models": []map[string]any{{
			"modelID":  providerModelID,
			"amount":   params.Quantity,
			"scale":    params.Scale,
			"unit":     params.Unit,
			"material": params.Material,
		}},
		"currency": params.Currency,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/pricing/model", c.baseURL)
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// do executes the request with retry on transient failures and returns the
// response body. A fresh request is built per attempt so the body can be
// replayed.
func (c *IMaterialise) do(ctx context.Context, build func() (*http.Request, error)) (json.RawMessage, error) {
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
			return fmt.Errorf("imaterialise: server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors won't get better on retry
			return backoff.Permanent(fmt.Errorf("imaterialise: request rejected with %d: %s", resp.StatusCode, data))
		}

		result = data
		return nil
	}

	strategy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(imatMaxRetryElapsed)), ctx)
	if err := backoff.Retry(operation, strategy); err != nil {
		return nil, err
	}
	return result, nil
}
