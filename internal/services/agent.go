package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maverick-software/toolboxd/internal/models"
)

const (
	agentStatusTimeout  = 8 * time.Second
	agentCommandTimeout = 30 * time.Second
)

// AgentAPI is the HTTP contract of the management agent running on a Toolbox.
type AgentAPI interface {
	Status(ctx context.Context, ip string) (*models.AgentStatusReport, error)
	DeployTool(ctx context.Context, ip string, req models.AgentDeployRequest) error
	StartTool(ctx context.Context, ip, name string) error
	StopTool(ctx context.Context, ip, name string) error
	RemoveTool(ctx context.Context, ip, name string) error
}

// AgentClient implements AgentAPI over HTTP. Status calls use a short
// timeout, distinct from the longer command timeout.
type AgentClient struct {
	sharedSecret  string
	port          int
	statusClient  *http.Client
	commandClient *http.Client
}

// NewAgentClient creates a new management agent HTTP client
func NewAgentClient(sharedSecret string, port int) *AgentClient {
	return &AgentClient{
		sharedSecret: sharedSecret,
		port:         port,
		statusClient: &http.Client{
			Timeout: agentStatusTimeout,
		},
		commandClient: &http.Client{
			Timeout: agentCommandTimeout,
		},
	}
}

// Status fetches the agent's self-reported status document
func (c *AgentClient) Status(ctx context.Context, ip string) (*models.AgentStatusReport, error) {
	url := fmt.Sprintf("http://%s:%d/status", ip, c.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.sharedSecret)

	resp, err := c.statusClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &AgentProtocolError{
			StatusCode: resp.StatusCode,
			Detail:     string(body),
		}
	}

	var report models.AgentStatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, &AgentProtocolError{
			Detail: fmt.Sprintf("failed to decode status response: %v", err),
		}
	}

	return &report, nil
}

// DeployTool issues POST /tools to deploy a new tool instance
func (c *AgentClient) DeployTool(ctx context.Context, ip string, deployReq models.AgentDeployRequest) error {
	return c.command(ctx, ip, http.MethodPost, "/tools", deployReq)
}

// StartTool issues POST /tools/{name}/start
func (c *AgentClient) StartTool(ctx context.Context, ip, name string) error {
	return c.command(ctx, ip, http.MethodPost, "/tools/"+name+"/start", nil)
}

// StopTool issues POST /tools/{name}/stop
func (c *AgentClient) StopTool(ctx context.Context, ip, name string) error {
	return c.command(ctx, ip, http.MethodPost, "/tools/"+name+"/stop", nil)
}

// RemoveTool issues DELETE /tools/{name}
func (c *AgentClient) RemoveTool(ctx context.Context, ip, name string) error {
	return c.command(ctx, ip, http.MethodDelete, "/tools/"+name, nil)
}

// command performs one authenticated command round trip against the agent
func (c *AgentClient) command(ctx context.Context, ip, method, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	url := fmt.Sprintf("http://%s:%d%s", ip, c.port, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.sharedSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.commandClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &AgentProtocolError{
			StatusCode: resp.StatusCode,
			Detail:     string(respBody),
		}
	}

	return nil
}
