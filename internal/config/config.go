package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Logging configuration
	LogLevel string

	// AWS configuration
	AWSRegion    string
	AWSAccountID string

	// DynamoDB configuration
	ToolboxesTableName string
	InstancesTableName string
	CatalogTableName   string
	SecretsTableName   string

	// DigitalOcean configuration
	DOAPIToken       string
	DOAPIBaseURL     string
	DefaultRegion    string
	DefaultSize      string
	DefaultImage     string
	DefaultSSHKeyIDs []string

	// Toolbox agent configuration
	AgentImage        string
	AgentPort         int
	AgentSharedSecret string
	CallbackBaseURL   string

	// Secret storage configuration
	SecretEncryptionKey string

	// Auth0 configuration (optional)
	Auth0Domain   string
	Auth0Audience string
}

// New creates a new Config instance by loading environment variables
// from .env file (if present) and OS environment.
// OS environment variables take precedence over .env file values.
// Panics if required configuration values are missing or invalid.
func New() *Config {
	// Load .env file from project root (silently ignore if not found)
	envPath := filepath.Join(".", ".env")
	_ = godotenv.Load(envPath)

	cfg := &Config{
		// Server configuration
		Port: getEnvOrDefault("PORT", "3001"),

		// Logging configuration
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),

		// AWS configuration
		AWSRegion:    getEnvOrDefault("AWS_REGION", "us-east-1"),
		AWSAccountID: os.Getenv("AWS_ACCOUNT_ID"),

		// DynamoDB configuration
		ToolboxesTableName: getEnvOrDefault("DYNAMODB_TOOLBOXES_TABLE", "Toolboxes"),
		InstancesTableName: getEnvOrDefault("DYNAMODB_INSTANCES_TABLE", "ToolInstances"),
		CatalogTableName:   getEnvOrDefault("DYNAMODB_CATALOG_TABLE", "ToolCatalog"),
		SecretsTableName:   getEnvOrDefault("DYNAMODB_SECRETS_TABLE", "ToolboxSecrets"),

		// DigitalOcean configuration
		DOAPIToken:       os.Getenv("DO_API_TOKEN"),
		DOAPIBaseURL:     getEnvOrDefault("DO_API_BASE_URL", "https://api.digitalocean.com"),
		DefaultRegion:    getEnvOrDefault("DO_DEFAULT_REGION", "nyc3"),
		DefaultSize:      getEnvOrDefault("DO_DEFAULT_SIZE", "s-1vcpu-1gb"),
		DefaultImage:     getEnvOrDefault("DO_DEFAULT_IMAGE", "ubuntu-22-04-x64"),
		DefaultSSHKeyIDs: splitCommaList(os.Getenv("DO_DEFAULT_SSH_KEY_IDS")),

		// Toolbox agent configuration
		AgentImage:        os.Getenv("TOOLBOX_AGENT_IMAGE"),
		AgentPort:         getEnvInt("TOOLBOX_AGENT_PORT", 30000),
		AgentSharedSecret: os.Getenv("BACKEND_TO_AGENT_SECRET"),
		CallbackBaseURL:   os.Getenv("API_CALLBACK_BASE_URL"),

		// Secret storage configuration
		SecretEncryptionKey: os.Getenv("SECRET_ENCRYPTION_KEY"),

		// Auth0 configuration (optional)
		Auth0Domain:   os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience: os.Getenv("AUTH0_AUDIENCE"),
	}

	// Validate required configuration
	cfg.validate()

	return cfg
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() {
	var missing []string

	if c.DOAPIToken == "" {
		missing = append(missing, "DO_API_TOKEN")
	}
	if c.AgentImage == "" {
		missing = append(missing, "TOOLBOX_AGENT_IMAGE")
	}
	if c.AgentSharedSecret == "" {
		missing = append(missing, "BACKEND_TO_AGENT_SECRET")
	}
	if c.CallbackBaseURL == "" {
		missing = append(missing, "API_CALLBACK_BASE_URL")
	}
	if c.SecretEncryptionKey == "" {
		missing = append(missing, "SECRET_ENCRYPTION_KEY")
	}

	if len(missing) > 0 {
		panic(fmt.Sprintf("Missing required configuration values: %v", missing))
	}

	// Validate encryption key length (must be 32 characters for AES-256)
	if len(c.SecretEncryptionKey) != 32 {
		panic(fmt.Sprintf("SECRET_ENCRYPTION_KEY must be exactly 32 characters (got %d)", len(c.SecretEncryptionKey)))
	}

	if c.AgentPort <= 0 || c.AgentPort > 65535 {
		panic(fmt.Sprintf("TOOLBOX_AGENT_PORT must be a valid port number (got %d)", c.AgentPort))
	}
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be an integer (got '%s')", key, value))
	}
	return n
}

// splitCommaList splits a comma-separated environment value into a slice,
// dropping empty entries.
func splitCommaList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
