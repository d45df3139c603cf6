package storage

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
)

// GatewayStore talks to an IPFS-style pinning gateway over HTTP: multipart
// upload returning the CID, plain GET by CID for retrieval. All transport
// failures surface as ErrUnavailable so callers can retry.
type GatewayStore struct {
	uploadURL  string
	gatewayURL string
	client     *http.Client
}

// NewGatewayStore builds a client for an upload endpoint and a read gateway
// base URL.
func NewGatewayStore(uploadURL, gatewayURL string) *GatewayStore {
	return &GatewayStore{
		uploadURL:  uploadURL,
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

type uploadResponse struct {
	Hash string `json:"Hash"`
	Name string `json:"Name"`
	Size string `json:"Size"`
}

func (g *GatewayStore) Upload(ctx context.Context, data []byte, name string) (Ref, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upload: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: upload status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode upload response: %v", ErrUnavailable, err)
	}
	return ParseRef(parsed.Hash)
}

func (g *GatewayStore) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	target, err := url.JoinPath(g.gatewayURL, ref.String())
	if err != nil {
		return nil, fmt.Errorf("build fetch url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch status %d", ErrUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read fetch body: %v", ErrUnavailable, err)
	}
	return data, nil
}
