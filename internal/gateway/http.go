package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// HTTPGateway implements Gateway against the content management service's
// HTTP API. Relative asset URLs resolve against the configured base URL.
type HTTPGateway struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway for the content API at baseURL. authToken
// is optional; when set it is sent as a bearer token on every request.
func NewHTTPGateway(baseURL, authToken string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{},
	}
}

// NewHTTPGatewayWithClient creates a gateway with a custom HTTP client, used
// by tests and callers that need their own timeout policy.
func NewHTTPGatewayWithClient(baseURL, authToken string, httpClient *http.Client) *HTTPGateway {
	g := NewHTTPGateway(baseURL, authToken)
	g.httpClient = httpClient
	return g
}

// FindAssetByID returns the asset record, or (nil, nil) on 404.
func (g *HTTPGateway) FindAssetByID(ctx context.Context, id string) (*variant.Asset, error) {
	endpoint := fmt.Sprintf("%s/api/v1/assets/%s", g.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset lookup failed with status %d", resp.StatusCode)
	}

	var asset variant.Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("failed to decode asset: %w", err)
	}
	return &asset, nil
}

// UpdateAssetCaption writes the caption field of an existing asset.
func (g *HTTPGateway) UpdateAssetCaption(ctx context.Context, id string, caption string) error {
	endpoint := fmt.Sprintf("%s/api/v1/assets/%s", g.baseURL, url.PathEscape(id))

	body, err := json.Marshal(map[string]string{"caption": caption})
	if err != nil {
		return fmt.Errorf("failed to marshal caption update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("caption update failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// FetchBytes downloads stored bytes. A relative URL resolves against the
// gateway's base URL.
func (g *HTTPGateway) FetchBytes(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.absURL(fileURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d for %s", resp.StatusCode, fileURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// UploadBytes stores derived bytes as a new asset via a multipart upload and
// returns the created record.
func (g *HTTPGateway) UploadBytes(ctx context.Context, upload UploadRequest) (*variant.Asset, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("files", upload.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}

	fileInfo, err := json.Marshal(map[string]string{
		"name":            upload.Filename,
		"alternativeText": upload.AltText,
		"caption":         upload.Caption,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file info: %w", err)
	}
	if err := writer.WriteField("fileInfo", string(fileInfo)); err != nil {
		return nil, fmt.Errorf("failed to write file info: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/assets", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	// The upload endpoint answers with either one record or a one-element
	// array depending on the storage provider behind it.
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	var asset variant.Asset
	if err := json.Unmarshal(respBody, &asset); err != nil {
		var assets []variant.Asset
		if err := json.Unmarshal(respBody, &assets); err != nil || len(assets) == 0 {
			return nil, fmt.Errorf("failed to decode upload response: %s", string(respBody))
		}
		asset = assets[0]
	}
	return &asset, nil
}

func (g *HTTPGateway) absURL(fileURL string) string {
	if strings.HasPrefix(fileURL, "http://") || strings.HasPrefix(fileURL, "https://") {
		return fileURL
	}
	return g.baseURL + "/" + strings.TrimLeft(fileURL, "/")
}

func (g *HTTPGateway) authorize(req *http.Request) {
	if g.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.authToken)
	}
}
