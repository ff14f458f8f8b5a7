package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maverick-software/toolboxd/internal/logger"
	"github.com/maverick-software/toolboxd/internal/models"
	"github.com/maverick-software/toolboxd/internal/repository"
)

// ImageResolver validates catalog image references before deploys are issued.
type ImageResolver interface {
	ResolveImage(ctx context.Context, imageRef string) (string, error)
}

// DispatcherService turns API-level tool commands into agent calls, keeping
// the instance record's status in sync with what was issued. Record writes
// happen before the agent call (transitional status) and after it (outcome
// status), so a crash mid-command leaves an honest transitional state behind.
type DispatcherService struct {
	envRepo      repository.EnvironmentRepository
	instanceRepo repository.InstanceRepository
	catalogRepo  repository.CatalogRepository
	agent        AgentAPI
	registry     ImageResolver
	locks        *KeyedMutex
}

// NewDispatcherService creates a new dispatcher service
func NewDispatcherService(
	envRepo repository.EnvironmentRepository,
	instanceRepo repository.InstanceRepository,
	catalogRepo repository.CatalogRepository,
	agent AgentAPI,
	registry ImageResolver,
	locks *KeyedMutex,
) *DispatcherService {
	return &DispatcherService{
		envRepo:      envRepo,
		instanceRepo: instanceRepo,
		catalogRepo:  catalogRepo,
		agent:        agent,
		registry:     registry,
		locks:        locks,
	}
}

// Deploy creates a tool instance record and instructs the agent to deploy the
// container. The environment must be active and the instance name unique
// within it.
func (s *DispatcherService) Deploy(ctx context.Context, caller models.Caller, envId string, req models.DeployToolRequest) (*models.Instance, error) {
	unlock := s.locks.Lock(envId)
	defer unlock()

	env, err := s.authorizedEnvironment(ctx, caller, envId)
	if err != nil {
		return nil, err
	}

	if env.Status != models.EnvStatusActive {
		return nil, &StatePreconditionError{
			Resource: "toolbox",
			Id:       env.Id,
			Current:  string(env.Status),
			Required: string(models.EnvStatusActive),
		}
	}

	entry, err := s.catalogRepo.Get(ctx, req.CatalogEntryId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("catalog entry %s not found", req.CatalogEntryId)
		}
		return nil, err
	}

	existing, err := s.instanceRepo.GetByEnvironment(ctx, env.Id)
	if err != nil {
		return nil, err
	}
	for _, inst := range existing {
		if inst.NameOnToolbox == req.InstanceName {
			return nil, fmt.Errorf("instance name %q is already in use on toolbox %s", req.InstanceName, env.Id)
		}
	}

	imageRef, err := s.registry.ResolveImage(ctx, entry.ImageRef)
	if err != nil {
		return nil, err
	}

	instanceId, err := newId("ti")
	if err != nil {
		return nil, err
	}

	configOverride := req.ConfigOverrideJson
	if configOverride == "" {
		configOverride = entry.DefaultConfigJson
	}

	now := time.Now()
	instance := &models.Instance{
		Id:                     instanceId,
		EnvironmentId:          env.Id,
		CatalogEntryId:         entry.Id,
		NameOnToolbox:          req.InstanceName,
		BaseConfigOverrideJson: configOverride,
		Status:                 models.InstanceStatusPendingDeploy,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.instanceRepo.Create(ctx, instance); err != nil {
		return nil, err
	}

	err = s.agent.DeployTool(ctx, env.PublicIPAddress, models.AgentDeployRequest{
		DockerImageUrl:         imageRef,
		InstanceNameOnToolbox:  instance.NameOnToolbox,
		AccountToolInstanceId:  instance.Id,
		BaseConfigOverrideJson: instance.BaseConfigOverrideJson,
	})
	if err != nil {
		return nil, s.failCommand(ctx, instance, models.InstanceStatusErrorDeploying, err)
	}

	instance.Status = models.InstanceStatusDeploying
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"toolbox_id":  env.Id,
		"instance_id": instance.Id,
		"tool_name":   instance.NameOnToolbox,
	}).Info("Tool deploy dispatched to agent")

	return instance, nil
}

// Start instructs the agent to start a stopped tool instance
func (s *DispatcherService) Start(ctx context.Context, caller models.Caller, instanceId string) (*models.Instance, error) {
	return s.dispatch(ctx, caller, instanceId, commandSpec{
		verb:         "start",
		required:     models.InstanceStatusStopped,
		transitional: models.InstanceStatusStartingOnToolbox,
		success:      models.InstanceStatusRunning,
		failure:      models.InstanceStatusErrorStarting,
		issue: func(ctx context.Context, ip, name string) error {
			return s.agent.StartTool(ctx, ip, name)
		},
	})
}

// Stop instructs the agent to stop a running tool instance
func (s *DispatcherService) Stop(ctx context.Context, caller models.Caller, instanceId string) (*models.Instance, error) {
	return s.dispatch(ctx, caller, instanceId, commandSpec{
		verb:         "stop",
		required:     models.InstanceStatusRunning,
		transitional: models.InstanceStatusStoppingOnToolbox,
		success:      models.InstanceStatusStopped,
		failure:      models.InstanceStatusErrorStopping,
		issue: func(ctx context.Context, ip, name string) error {
			return s.agent.StopTool(ctx, ip, name)
		},
	})
}

// Remove instructs the agent to remove a tool instance's container, then
// deletes the record. Unlike start/stop there is no status precondition:
// removal is how callers clear out instances stuck in error states.
func (s *DispatcherService) Remove(ctx context.Context, caller models.Caller, instanceId string) error {
	instance, err := s.instanceRepo.Get(ctx, instanceId)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(instance.EnvironmentId)
	defer unlock()

	env, err := s.authorizedEnvironment(ctx, caller, instance.EnvironmentId)
	if err != nil {
		return err
	}

	instance.Status = models.InstanceStatusPendingDelete
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return err
	}

	if err := s.agent.RemoveTool(ctx, env.PublicIPAddress, instance.NameOnToolbox); err != nil {
		return s.failCommand(ctx, instance, models.InstanceStatusErrorDeleting, err)
	}

	instance.Status = models.InstanceStatusDeleting
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return err
	}

	if err := s.instanceRepo.Delete(ctx, instance.Id); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"toolbox_id":  env.Id,
		"instance_id": instance.Id,
	}).Info("Tool instance removed")

	return nil
}

// ListByEnvironment returns the instances deployed to an environment
func (s *DispatcherService) ListByEnvironment(ctx context.Context, caller models.Caller, envId string) ([]*models.Instance, error) {
	if _, err := s.authorizedEnvironment(ctx, caller, envId); err != nil {
		return nil, err
	}
	return s.instanceRepo.GetByEnvironment(ctx, envId)
}

// UpdateFromAgentReport reconciles one instance record against the status the
// agent reported for it. Reports for unknown instance ids are ignored: the
// agent may still mention containers whose records were already deleted.
func (s *DispatcherService) UpdateFromAgentReport(ctx context.Context, instanceId, reportedStatus string, heartbeat time.Time) (*models.Instance, error) {
	instance, err := s.instanceRepo.Get(ctx, instanceId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	mapped := models.MapAgentToolStatus(reportedStatus)
	if instance.Status == mapped && instance.LastAgentHeartbeatAt != nil && instance.LastAgentHeartbeatAt.Equal(heartbeat) {
		return instance, nil
	}

	if instance.Status != mapped {
		logger.WithFields(map[string]interface{}{
			"instance_id": instance.Id,
			"from":        string(instance.Status),
			"to":          string(mapped),
			"reported":    reportedStatus,
		}).Info("Reconciling tool instance status from agent report")
	}

	instance.Status = mapped
	instance.LastAgentHeartbeatAt = &heartbeat
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// commandSpec describes one start/stop style agent command
type commandSpec struct {
	verb         string
	required     models.InstanceStatus
	transitional models.InstanceStatus
	success      models.InstanceStatus
	failure      models.InstanceStatus
	issue        func(ctx context.Context, ip, name string) error
}

func (s *DispatcherService) dispatch(ctx context.Context, caller models.Caller, instanceId string, cmd commandSpec) (*models.Instance, error) {
	instance, err := s.instanceRepo.Get(ctx, instanceId)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(instance.EnvironmentId)
	defer unlock()

	env, err := s.authorizedEnvironment(ctx, caller, instance.EnvironmentId)
	if err != nil {
		return nil, err
	}

	// Start/stop need a reachable agent, which only an active environment has.
	if env.Status != models.EnvStatusActive {
		return nil, &StatePreconditionError{
			Resource: "toolbox",
			Id:       env.Id,
			Current:  string(env.Status),
			Required: string(models.EnvStatusActive),
		}
	}

	// Re-read under the lock; a concurrent command may have moved it.
	instance, err = s.instanceRepo.Get(ctx, instanceId)
	if err != nil {
		return nil, err
	}

	if instance.Status != cmd.required {
		return nil, &StatePreconditionError{
			Resource: "tool instance",
			Id:       instance.Id,
			Current:  string(instance.Status),
			Required: string(cmd.required),
		}
	}

	instance.Status = cmd.transitional
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return nil, err
	}

	if err := cmd.issue(ctx, env.PublicIPAddress, instance.NameOnToolbox); err != nil {
		return nil, s.failCommand(ctx, instance, cmd.failure, err)
	}

	instance.Status = cmd.success
	instance.LastError = ""
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"toolbox_id":  env.Id,
		"instance_id": instance.Id,
		"command":     cmd.verb,
	}).Info("Tool command dispatched to agent")

	return instance, nil
}

// failCommand records a command failure on the instance and returns the cause
func (s *DispatcherService) failCommand(ctx context.Context, instance *models.Instance, status models.InstanceStatus, cause error) error {
	instance.Status = status
	instance.LastError = truncateError(cause)
	if updateErr := s.instanceRepo.Update(ctx, instance); updateErr != nil {
		logger.WithFields(map[string]interface{}{
			"instance_id": instance.Id,
			"error":       updateErr.Error(),
		}).Error("Failed to persist command failure")
	}
	return cause
}

// authorizedEnvironment loads an environment and verifies the caller may act
// on it.
func (s *DispatcherService) authorizedEnvironment(ctx context.Context, caller models.Caller, envId string) (*models.Environment, error) {
	env, err := s.envRepo.Get(ctx, envId)
	if err != nil {
		return nil, err
	}
	if !caller.MayAccess(env.UserId) {
		return nil, ErrNotAuthorized
	}
	return env, nil
}
