package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/facevote-api/internal/domain"
)

// API is the server surface the gate drives.
type API interface {
	IssueOTP(ctx context.Context, identity, purpose string) (time.Time, error)
	SignedReference(ctx context.Context, fresh bool) (domain.SignedReference, error)
	MintToken(ctx context.Context) (string, error)
	Cast(ctx context.Context, req domain.CastRequest) (*domain.CastResult, error)
}

// Client is the REST implementation of API. Error responses are decoded into
// *domain.CodedError so callers branch on the code, never on prose.
type Client struct {
	baseURL string
	bearer  string
	http    *http.Client
}

func NewClient(baseURL, bearer string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), bearer: bearer, http: httpClient}
}

type errorBody struct {
	Error     string      `json:"error"`
	ErrorCode domain.Code `json:"error_code"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.ErrorCode != "" {
			return domain.Errorf(eb.ErrorCode, eb.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) IssueOTP(ctx context.Context, identity, purpose string) (time.Time, error) {
	var out struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/otp", map[string]string{"identity": identity, "purpose": purpose}, &out)
	return out.ExpiresAt, err
}

func (c *Client) SignedReference(ctx context.Context, fresh bool) (domain.SignedReference, error) {
	path := "/v1/face"
	if fresh {
		path += "?fresh=1"
	}
	var ref domain.SignedReference
	err := c.do(ctx, http.MethodGet, path, nil, &ref)
	return ref, err
}

func (c *Client) MintToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/vote-token", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) Cast(ctx context.Context, req domain.CastRequest) (*domain.CastResult, error) {
	var res domain.CastResult
	if err := c.do(ctx, http.MethodPost, "/v1/vote", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Fetcher downloads the image behind a signed reference.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches signed URLs with a plain GET; any non-2xx is an error.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch reference: status %d", resp.StatusCode)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
