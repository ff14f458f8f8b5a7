package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/maverick-software/toolboxd/internal/models"
)

const doRequestTimeout = 30 * time.Second

// DigitalOceanClient implements Provider against the DigitalOcean droplets
// API. It is constructed explicitly and injected; no package-level client
// state is kept.
type DigitalOceanClient struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// NewDigitalOceanClient creates a new DigitalOcean provider client
func NewDigitalOceanClient(apiToken, baseURL string) *DigitalOceanClient {
	return &DigitalOceanClient{
		apiToken: apiToken,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: doRequestTimeout,
		},
	}
}

// droplet mirrors the subset of the DigitalOcean droplet document we consume
type droplet struct {
	Id       int64    `json:"id"`
	Status   string   `json:"status"`
	Tags     []string `json:"tags"`
	Networks struct {
		V4 []struct {
			IPAddress string `json:"ip_address"`
			Type      string `json:"type"`
		} `json:"v4"`
	} `json:"networks"`
}

// toProviderInstance converts a droplet document to the canonical form
func (d *droplet) toProviderInstance() *ProviderInstance {
	instance := &ProviderInstance{
		Id:     strconv.FormatInt(d.Id, 10),
		Status: models.ParseProviderInstanceStatus(d.Status),
		Tags:   d.Tags,
	}
	for _, net := range d.Networks.V4 {
		if net.Type == "public" {
			instance.PublicIPv4 = net.IPAddress
			break
		}
	}
	return instance
}

// CreateInstance creates a new droplet with the given cloud-init user data
func (c *DigitalOceanClient) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*ProviderInstance, error) {
	payload := map[string]interface{}{
		"name":      req.Name,
		"region":    req.Region,
		"size":      req.Size,
		"image":     req.Image,
		"tags":      req.Tags,
		"user_data": req.UserData,
	}
	if len(req.SSHKeys) > 0 {
		payload["ssh_keys"] = req.SSHKeys
	}

	var response struct {
		Droplet droplet `json:"droplet"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/droplets", payload, &response, "create_instance"); err != nil {
		return nil, err
	}

	return response.Droplet.toProviderInstance(), nil
}

// GetInstance fetches a droplet by its provider ID
func (c *DigitalOceanClient) GetInstance(ctx context.Context, id string) (*ProviderInstance, error) {
	var response struct {
		Droplet droplet `json:"droplet"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/droplets/"+id, nil, &response, "get_instance"); err != nil {
		return nil, err
	}

	return response.Droplet.toProviderInstance(), nil
}

// DeleteInstance deletes a droplet by its provider ID. A 404 surfaces as a
// ProviderError with kind not_found so callers can treat it as already gone.
func (c *DigitalOceanClient) DeleteInstance(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v2/droplets/"+id, nil, nil, "delete_instance")
}

// ListInstancesByTag lists all droplets carrying the given tag
func (c *DigitalOceanClient) ListInstancesByTag(ctx context.Context, tag string) ([]*ProviderInstance, error) {
	var response struct {
		Droplets []droplet `json:"droplets"`
	}
	path := "/v2/droplets?tag_name=" + tag
	if err := c.do(ctx, http.MethodGet, path, nil, &response, "list_instances"); err != nil {
		return nil, err
	}

	instances := make([]*ProviderInstance, 0, len(response.Droplets))
	for i := range response.Droplets {
		instances = append(instances, response.Droplets[i].toProviderInstance())
	}
	return instances, nil
}

// do performs one authenticated API round trip and decodes the response into
// out (if non-nil). Provider failures are classified into the error taxonomy.
func (c *DigitalOceanClient) do(ctx context.Context, method, path string, payload interface{}, out interface{}, op string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &ProviderError{Kind: ProviderErrUnexpected, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &ProviderError{Kind: ProviderErrUnexpected, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Kind: ProviderErrUnexpected, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Kind: classifyStatus(resp.StatusCode), Op: op, Err: apiError(resp)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ProviderError{Kind: ProviderErrUnexpected, Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// classifyStatus maps an HTTP status code to the provider error taxonomy
func classifyStatus(statusCode int) ProviderErrorKind {
	switch statusCode {
	case http.StatusNotFound:
		return ProviderErrNotFound
	case http.StatusTooManyRequests:
		return ProviderErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ProviderErrAuthFailed
	default:
		return ProviderErrUnexpected
	}
}

// apiError extracts the provider's error message from a failed response
func apiError(resp *http.Response) error {
	var apiErr struct {
		Id      string `json:"id"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
