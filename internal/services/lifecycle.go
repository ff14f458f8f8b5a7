package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/maverick-software/toolboxd/internal/logger"
	"github.com/maverick-software/toolboxd/internal/models"
	"github.com/maverick-software/toolboxd/internal/repository"
)

const (
	// PlatformTag marks every provider instance created by this service.
	PlatformTag = "toolboxd"

	defaultPollInterval    = 10 * time.Second
	defaultMaxPollAttempts = 30

	// Provider instance name length limit (DNS label rules).
	maxInstanceNameLen = 63
)

// InstanceReconciler is the status-update path instances are reconciled
// through during environment refresh.
type InstanceReconciler interface {
	UpdateFromAgentReport(ctx context.Context, instanceId, reportedStatus string, heartbeat time.Time) (*models.Instance, error)
}

// LifecycleConfig carries the configuration the lifecycle service needs.
type LifecycleConfig struct {
	CallbackBaseURL   string
	AgentSharedSecret string
	AgentImage        string
	AgentPort         int
	DefaultRegion     string
	DefaultSize       string
	DefaultImage      string
	SSHKeyIDs         []string
	PollInterval      time.Duration
	MaxPollAttempts   int
}

// LifecycleService orchestrates provisioning, status reconciliation, and
// deprovisioning of Toolbox environments.
type LifecycleService struct {
	envRepo      repository.EnvironmentRepository
	instanceRepo repository.InstanceRepository
	provider     Provider
	secrets      SecretStore
	agent        AgentAPI
	reconciler   InstanceReconciler
	locks        *KeyedMutex
	cfg          LifecycleConfig
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(
	envRepo repository.EnvironmentRepository,
	instanceRepo repository.InstanceRepository,
	provider Provider,
	secrets SecretStore,
	agent AgentAPI,
	reconciler InstanceReconciler,
	locks *KeyedMutex,
	cfg LifecycleConfig,
) *LifecycleService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	return &LifecycleService{
		envRepo:      envRepo,
		instanceRepo: instanceRepo,
		provider:     provider,
		secrets:      secrets,
		agent:        agent,
		reconciler:   reconciler,
		locks:        locks,
		cfg:          cfg,
	}
}

// Provision creates a new Toolbox environment and drives it to
// awaiting_heartbeat. Blocks for up to the full polling budget; callers that
// cannot wait should use CreateEnvironment plus a background RunProvisioning.
func (s *LifecycleService) Provision(ctx context.Context, ownerId string, req models.ProvisionToolboxRequest) (*models.Environment, error) {
	env, err := s.CreateEnvironment(ctx, ownerId, req)
	if err != nil {
		return nil, err
	}
	return s.RunProvisioning(ctx, env.Id)
}

// CreateEnvironment generates the agent bearer token and inserts the
// environment record in pending_provision. No provider calls are made.
func (s *LifecycleService) CreateEnvironment(ctx context.Context, ownerId string, req models.ProvisionToolboxRequest) (*models.Environment, error) {
	envId, err := newId("tb")
	if err != nil {
		return nil, err
	}

	// Fresh high-entropy bearer token for the management agent.
	token, err := newBearerToken()
	if err != nil {
		return nil, err
	}

	tokenRef, err := s.secrets.CreateSecret(ctx, "toolbox-agent-token-"+envId, token)
	if err != nil {
		return nil, fmt.Errorf("failed to store agent token: %w", err)
	}

	region := req.Region
	if region == "" {
		region = s.cfg.DefaultRegion
	}
	size := req.Size
	if size == "" {
		size = s.cfg.DefaultSize
	}

	now := time.Now()
	env := &models.Environment{
		Id:            envId,
		UserId:        ownerId,
		Name:          req.Name,
		Description:   req.Description,
		Region:        region,
		Size:          size,
		Image:         s.cfg.DefaultImage,
		AgentTokenRef: tokenRef,
		Status:        models.EnvStatusPendingProvision,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.envRepo.Create(ctx, env); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"toolbox_id": env.Id,
		"user_id":    ownerId,
		"region":     region,
		"size":       size,
	}).Info("Toolbox environment created, pending provision")

	return env, nil
}

// RunProvisioning drives an environment from pending_provision (or a previous
// error_provisioning, for caller-initiated retry) to awaiting_heartbeat:
// builds the bootstrap script, creates the provider instance, and polls until
// the instance is active with a public IPv4 address.
func (s *LifecycleService) RunProvisioning(ctx context.Context, envId string) (*models.Environment, error) {
	unlock := s.locks.Lock(envId)
	defer unlock()

	env, err := s.envRepo.Get(ctx, envId)
	if err != nil {
		return nil, err
	}

	if env.Status != models.EnvStatusPendingProvision && env.Status != models.EnvStatusErrorProvisioning {
		return nil, &StatePreconditionError{
			Resource: "toolbox",
			Id:       env.Id,
			Current:  string(env.Status),
			Required: string(models.EnvStatusPendingProvision),
		}
	}

	// Configuration must be complete before any provider call is made.
	if err := s.checkConfig(); err != nil {
		return nil, s.failProvisioning(ctx, env, err)
	}

	token, err := s.secrets.GetSecret(ctx, env.AgentTokenRef)
	if err != nil {
		return nil, s.failProvisioning(ctx, env, fmt.Errorf("failed to load agent token: %w", err))
	}

	userData, err := BuildBootstrapScript(BootstrapInput{
		AgentToken:      token,
		BackendSecret:   s.cfg.AgentSharedSecret,
		CallbackBaseURL: s.cfg.CallbackBaseURL,
		AgentImage:      s.cfg.AgentImage,
		AgentPort:       s.cfg.AgentPort,
	})
	if err != nil {
		return nil, s.failProvisioning(ctx, env, fmt.Errorf("failed to build bootstrap script: %w", err))
	}

	env.Status = models.EnvStatusProvisioning
	if err := s.envRepo.Update(ctx, env); err != nil {
		return nil, err
	}

	created, err := s.provider.CreateInstance(ctx, CreateInstanceRequest{
		Name:     providerInstanceName(env.UserId, env.Id),
		Region:   env.Region,
		Size:     env.Size,
		Image:    env.Image,
		SSHKeys:  s.cfg.SSHKeyIDs,
		Tags:     []string{PlatformTag, "env:" + env.Id},
		UserData: userData,
	})
	if err != nil {
		return nil, s.failProvisioning(ctx, env, err)
	}

	// Persist the provider instance id before anything else: a crash past
	// this point must not orphan an untracked instance.
	env.ProviderInstanceId = created.Id
	if err := s.envRepo.Update(ctx, env); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"toolbox_id":           env.Id,
		"provider_instance_id": env.ProviderInstanceId,
	}).Info("Provider instance created, polling until active")

	ip, err := s.pollUntilActive(ctx, env.ProviderInstanceId)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Abandoned attempt: leave the record in its last persisted
			// status for later inspection or retry.
			return nil, err
		}
		return nil, s.failProvisioning(ctx, env, err)
	}

	env.PublicIPAddress = ip
	env.Status = models.EnvStatusAwaitingHeartbeat
	env.LastError = ""
	if err := s.envRepo.Update(ctx, env); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"toolbox_id": env.Id,
		"public_ip":  ip,
	}).Info("Toolbox instance active, awaiting first agent heartbeat")

	return env, nil
}

// pollUntilActive polls the provider until the instance reports active with a
// public IPv4 address, a terminal failure, or the attempt budget is spent.
func (s *LifecycleService) pollUntilActive(ctx context.Context, providerInstanceId string) (string, error) {
	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		instance, err := s.provider.GetInstance(ctx, providerInstanceId)
		if err != nil {
			return "", err
		}

		if instance.Status == models.ProviderStatusActive && instance.PublicIPv4 != "" {
			return instance.PublicIPv4, nil
		}
		if instance.Status.IsTerminalFailure() {
			return "", fmt.Errorf("provider instance %s entered terminal state %q during provisioning",
				providerInstanceId, instance.Status)
		}

		if attempt == s.cfg.MaxPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}

	return "", fmt.Errorf("provider instance %s did not become active within %d attempts",
		providerInstanceId, s.cfg.MaxPollAttempts)
}

// failProvisioning records a provisioning failure on the environment and
// returns the original error. The record is kept for operator inspection.
func (s *LifecycleService) failProvisioning(ctx context.Context, env *models.Environment, cause error) error {
	env.Status = models.EnvStatusErrorProvisioning
	env.LastError = truncateError(cause)
	if updateErr := s.envRepo.Update(ctx, env); updateErr != nil {
		logger.WithFields(map[string]interface{}{
			"toolbox_id": env.Id,
			"error":      updateErr.Error(),
		}).Error("Failed to persist provisioning failure")
	}

	logger.WithFields(map[string]interface{}{
		"toolbox_id": env.Id,
		"error":      cause.Error(),
	}).Error("Toolbox provisioning failed")

	return cause
}

// Deprovision tears down a Toolbox: deletes the provider instance, then the
// environment record (cascading to its instances) and the agent token secret.
// Idempotent: an already-deleted environment reports success.
func (s *LifecycleService) Deprovision(ctx context.Context, envId, requestingOwnerId string) error {
	unlock := s.locks.Lock(envId)
	defer unlock()

	env, err := s.envRepo.Get(ctx, envId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Record already gone: a previous deprovision completed.
			return nil
		}
		return err
	}

	if requestingOwnerId != "" && env.UserId != requestingOwnerId {
		return ErrNotAuthorized
	}

	if env.Status == models.EnvStatusDeprovisioning {
		return nil
	}

	env.Status = models.EnvStatusDeprovisioning
	env.PublicIPAddress = ""
	if err := s.envRepo.Update(ctx, env); err != nil {
		return err
	}

	if env.ProviderInstanceId != "" {
		err := s.provider.DeleteInstance(ctx, env.ProviderInstanceId)
		if err != nil && !IsProviderNotFound(err) {
			env.Status = models.EnvStatusErrorDeprovisioning
			env.LastError = truncateError(err)
			if updateErr := s.envRepo.Update(ctx, env); updateErr != nil {
				logger.WithFields(map[string]interface{}{
					"toolbox_id": env.Id,
					"error":      updateErr.Error(),
				}).Error("Failed to persist deprovisioning failure")
			}
			return err
		}
		if IsProviderNotFound(err) {
			logger.WithField("toolbox_id", env.Id).Warn("Provider instance already gone, continuing deprovision")
		}
	}

	if err := s.instanceRepo.DeleteByEnvironment(ctx, env.Id); err != nil {
		logger.WithFields(map[string]interface{}{
			"toolbox_id": env.Id,
			"error":      err.Error(),
		}).Error("Failed to cascade-delete tool instances")
		return err
	}

	if err := s.envRepo.Delete(ctx, env.Id); err != nil {
		return err
	}

	// Best-effort secret cleanup. A leftover secret after a successful
	// delete is an orphan for manual cleanup, not a failure of the operation.
	if env.AgentTokenRef != "" {
		if err := s.secrets.DeleteSecret(ctx, env.AgentTokenRef); err != nil {
			logger.WithFields(map[string]interface{}{
				"toolbox_id": env.Id,
				"secret_ref": env.AgentTokenRef,
				"error":      err.Error(),
			}).Error("Orphaned agent token secret requires manual cleanup")
		}
	}

	logger.WithField("toolbox_id", env.Id).Info("Toolbox deprovisioned")
	return nil
}

// RefreshStatus contacts the management agent, updates the environment's
// health snapshot, and reconciles tool instance statuses from the agent's
// report. Failures to reach the agent mark the environment unresponsive.
func (s *LifecycleService) RefreshStatus(ctx context.Context, envId, requestingOwnerId string) (*models.Environment, error) {
	unlock := s.locks.Lock(envId)
	defer unlock()

	env, err := s.envRepo.Get(ctx, envId)
	if err != nil {
		return nil, err
	}

	if requestingOwnerId != "" && env.UserId != requestingOwnerId {
		return nil, ErrNotAuthorized
	}

	if env.Status.IsDeprovisioningAdjacent() {
		// Do not contact the agent of an environment being torn down.
		return env, nil
	}

	ip, err := s.resolvePublicIP(ctx, env)
	if err != nil {
		return nil, err
	}

	report, err := s.agent.Status(ctx, ip)
	if err != nil {
		env.Status = models.EnvStatusUnresponsive
		env.LastError = truncateError(err)
		if updateErr := s.envRepo.Update(ctx, env); updateErr != nil {
			logger.WithFields(map[string]interface{}{
				"toolbox_id": env.Id,
				"error":      updateErr.Error(),
			}).Error("Failed to persist unresponsive status")
		}
		return nil, err
	}

	now := time.Now()
	env.AgentVersion = report.Version
	env.LastHealth = report.HealthSnapshot()
	env.LastHeartbeatAt = &now
	env.LastError = ""
	if !env.Status.IsDeprovisioningAdjacent() {
		env.Status = models.EnvStatusActive
	}
	if err := s.envRepo.Update(ctx, env); err != nil {
		return nil, err
	}

	// Reconcile each reported instance independently; one bad report must
	// not abort processing of the others.
	for _, tool := range report.ToolInstances {
		if _, err := s.reconciler.UpdateFromAgentReport(ctx, tool.AccountToolInstanceId, tool.Status, now); err != nil {
			logger.WithFields(map[string]interface{}{
				"toolbox_id":  env.Id,
				"instance_id": tool.AccountToolInstanceId,
				"error":       err.Error(),
			}).Error("Failed to reconcile tool instance from agent report")
		}
	}

	return env, nil
}

// resolvePublicIP re-fetches the instance's public address from the provider,
// falling back to the stored address when the provider is unavailable.
func (s *LifecycleService) resolvePublicIP(ctx context.Context, env *models.Environment) (string, error) {
	if env.ProviderInstanceId != "" {
		instance, err := s.provider.GetInstance(ctx, env.ProviderInstanceId)
		if err == nil && instance.PublicIPv4 != "" {
			if instance.PublicIPv4 != env.PublicIPAddress {
				logger.WithFields(map[string]interface{}{
					"toolbox_id": env.Id,
					"stored_ip":  env.PublicIPAddress,
					"current_ip": instance.PublicIPv4,
				}).Warn("Stored public IP is stale, updating from provider")
				env.PublicIPAddress = instance.PublicIPv4
				if updateErr := s.envRepo.Update(ctx, env); updateErr != nil {
					return "", updateErr
				}
			}
			return instance.PublicIPv4, nil
		}
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"toolbox_id": env.Id,
				"error":      err.Error(),
			}).Warn("Provider lookup failed, falling back to stored IP")
		}
	}

	if env.PublicIPAddress == "" {
		return "", fmt.Errorf("toolbox %s has no known public IP address", env.Id)
	}
	return env.PublicIPAddress, nil
}

// ListOrphanInstances reports provider instances carrying the platform tag
// that have no matching environment record. Read-only operator aid.
func (s *LifecycleService) ListOrphanInstances(ctx context.Context) ([]*ProviderInstance, error) {
	instances, err := s.provider.ListInstancesByTag(ctx, PlatformTag)
	if err != nil {
		return nil, err
	}

	envs, err := s.envRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]bool, len(envs))
	for _, env := range envs {
		if env.ProviderInstanceId != "" {
			tracked[env.ProviderInstanceId] = true
		}
	}

	orphans := make([]*ProviderInstance, 0)
	for _, instance := range instances {
		if !tracked[instance.Id] {
			orphans = append(orphans, instance)
		}
	}
	return orphans, nil
}

// checkConfig verifies the configuration the bootstrap script depends on
func (s *LifecycleService) checkConfig() error {
	switch {
	case s.cfg.CallbackBaseURL == "":
		return &ConfigurationError{Missing: "API callback base URL"}
	case s.cfg.AgentSharedSecret == "":
		return &ConfigurationError{Missing: "backend-to-agent shared secret"}
	case s.cfg.AgentImage == "":
		return &ConfigurationError{Missing: "toolbox agent image"}
	}
	return nil
}

// newId generates a random record identifier with the given prefix
func newId(prefix string) (string, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return prefix + "-" + hex.EncodeToString(buf), nil
}

// NewCatalogEntryId generates an identifier for a catalog entry record
func NewCatalogEntryId() (string, error) {
	return newId("ct")
}

// newBearerToken generates a 32-byte hex-encoded bearer token
func newBearerToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate bearer token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// providerInstanceName derives a deterministic, length-bounded provider
// instance name from the owner and environment ids.
func providerInstanceName(ownerId, envId string) string {
	owner := sanitizeNamePart(ownerId)
	if len(owner) > 8 {
		owner = owner[:8]
	}
	name := fmt.Sprintf("tb-%s-%s", owner, envId)
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	return strings.Trim(name, "-")
}

// sanitizeNamePart strips characters the provider rejects in instance names
func sanitizeNamePart(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}
