package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const registryCheckPath = "/cop/v1/checks"

// HTTPRegistry calls a Confirmation-of-Payee provider over HTTPS.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
	signer  *Signer
	now     func() time.Time
}

type HTTPRegistryConfig struct {
	BaseURL string
	Secret  string
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
}

func NewHTTPRegistry(cfg HTTPRegistryConfig) (*HTTPRegistry, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("registry base url is required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	var signer *Signer
	if cfg.Secret != "" {
		signer = NewSigner(cfg.Secret)
	}
	return &HTTPRegistry{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		signer:  signer,
		now:     nowFn,
	}, nil
}

func (r *HTTPRegistry) Lookup(ctx context.Context, req RegistryRequest) (RegistryResponse, error) {
	body, err := EncodeRegistryRequest(req)
	if err != nil {
		return RegistryResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+registryCheckPath, bytes.NewReader(body))
	if err != nil {
		return RegistryResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.signer != nil {
		ts := r.now()
		httpReq.Header.Set("X-Timestamp", strconv.FormatInt(ts.Unix(), 10))
		httpReq.Header.Set("X-Signature", r.signer.Sign(ts, body))
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return RegistryResponse{}, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return RegistryResponse{}, fmt.Errorf("read registry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return RegistryResponse{}, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return DecodeRegistryResponse(raw)
}
