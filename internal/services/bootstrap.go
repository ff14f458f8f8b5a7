package services

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

// BootstrapInput describes the data embedded into a Toolbox's cloud-init
// user data. Token and BackendSecret are secret values; they are written into
// the rendered document and must never be logged.
type BootstrapInput struct {
	AgentToken      string // bearer token the agent uses to call back to the platform
	BackendSecret   string // shared secret the platform uses to authenticate to the agent
	CallbackBaseURL string
	AgentImage      string
	AgentPort       int
}

const agentEnvFilePath = "/etc/toolbox-agent/agent.env"

// cloudConfig is the subset of the cloud-init user-data schema we emit
type cloudConfig struct {
	PackageUpdate bool        `yaml:"package_update"`
	Packages      []string    `yaml:"packages"`
	WriteFiles    []writeFile `yaml:"write_files"`
	RunCmd        []string    `yaml:"runcmd"`
}

type writeFile struct {
	Path        string `yaml:"path"`
	Permissions string `yaml:"permissions"`
	Content     string `yaml:"content"`
}

// BuildBootstrapScript assembles the cloud-init user-data document that
// installs a container runtime and launches the management agent as an
// auto-restarting container bound to the agent port. Pure function, no I/O.
func BuildBootstrapScript(input BootstrapInput) (string, error) {
	if strings.TrimSpace(input.AgentToken) == "" {
		return "", errors.New("agent bearer token is required")
	}
	if strings.TrimSpace(input.BackendSecret) == "" {
		return "", errors.New("backend shared secret is required")
	}
	if strings.TrimSpace(input.CallbackBaseURL) == "" {
		return "", errors.New("callback base URL is required")
	}
	if strings.TrimSpace(input.AgentImage) == "" {
		return "", errors.New("agent image reference is required")
	}
	if input.AgentPort <= 0 {
		return "", fmt.Errorf("agent port must be positive (got %d)", input.AgentPort)
	}

	envFile := strings.Join([]string{
		"AGENT_BEARER_TOKEN=" + input.AgentToken,
		"BACKEND_SHARED_SECRET=" + input.BackendSecret,
		"API_CALLBACK_BASE_URL=" + input.CallbackBaseURL,
		fmt.Sprintf("AGENT_PORT=%d", input.AgentPort),
		"",
	}, "\n")

	doc := cloudConfig{
		PackageUpdate: true,
		Packages:      []string{"docker.io"},
		WriteFiles: []writeFile{
			{
				Path:        agentEnvFilePath,
				Permissions: "0600",
				Content:     envFile,
			},
		},
		RunCmd: []string{
			"systemctl enable --now docker",
			fmt.Sprintf("docker pull %s", input.AgentImage),
			fmt.Sprintf(
				"docker run -d --name toolbox-agent --restart always --env-file %s -p %d:%d -v /var/run/docker.sock:/var/run/docker.sock %s",
				agentEnvFilePath, input.AgentPort, input.AgentPort, input.AgentImage,
			),
		},
	}

	rendered, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render cloud-config: %w", err)
	}

	return "#cloud-config\n" + string(rendered), nil
}
