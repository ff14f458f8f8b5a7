package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maverick-software/toolboxd/internal/models"
)

// dispatcherFixture bundles the dispatcher with its fakes and a seeded
// active environment owned by auth0|owner.
type dispatcherFixture struct {
	svc      *DispatcherService
	envRepo  *fakeEnvRepo
	instRepo *fakeInstanceRepo
	catalog  *fakeCatalogRepo
	agent    *fakeAgent
	resolver *fakeResolver
	env      *models.Environment
}

var (
	owner    = models.Caller{UserId: "auth0|owner"}
	intruder = models.Caller{UserId: "auth0|intruder"}
	admin    = models.Caller{UserId: "auth0|admin", Roles: []string{models.AdminRole}}
)

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	envRepo := newFakeEnvRepo()
	instRepo := newFakeInstanceRepo()
	catalog := newFakeCatalogRepo()
	agent := &fakeAgent{}
	resolver := &fakeResolver{}

	svc := NewDispatcherService(envRepo, instRepo, catalog, agent, resolver, NewKeyedMutex())

	now := time.Now()
	env := &models.Environment{
		Id:              "tb-1",
		UserId:          owner.UserId,
		Name:            "dev box",
		PublicIPAddress: "203.0.113.5",
		Status:          models.EnvStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := envRepo.Create(context.Background(), env); err != nil {
		t.Fatalf("Seeding environment failed: %v", err)
	}

	if err := catalog.Create(context.Background(), &models.CatalogEntry{
		Id:                "ct-1",
		Name:              "code-server",
		ImageRef:          "registry.example.com/code-server:4.19",
		DefaultConfigJson: `{"port":8443}`,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		t.Fatalf("Seeding catalog failed: %v", err)
	}

	return &dispatcherFixture{
		svc:      svc,
		envRepo:  envRepo,
		instRepo: instRepo,
		catalog:  catalog,
		agent:    agent,
		resolver: resolver,
		env:      env,
	}
}

func (f *dispatcherFixture) seedInstance(t *testing.T, id string, status models.InstanceStatus) *models.Instance {
	t.Helper()
	now := time.Now()
	inst := &models.Instance{
		Id:             id,
		EnvironmentId:  f.env.Id,
		CatalogEntryId: "ct-1",
		NameOnToolbox:  "tool-" + id,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.instRepo.Create(context.Background(), inst); err != nil {
		t.Fatalf("Seeding instance failed: %v", err)
	}
	return inst
}

func TestDeploy_Success(t *testing.T) {
	f := newDispatcherFixture(t)

	inst, err := f.svc.Deploy(context.Background(), owner, f.env.Id, models.DeployToolRequest{
		CatalogEntryId: "ct-1",
		InstanceName:   "code-server",
	})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	if inst.Status != models.InstanceStatusDeploying {
		t.Fatalf("Expected status %s, got %s", models.InstanceStatusDeploying, inst.Status)
	}
	// No override supplied, so the catalog default config is forwarded
	if inst.BaseConfigOverrideJson != `{"port":8443}` {
		t.Fatalf("Expected catalog default config, got %q", inst.BaseConfigOverrideJson)
	}

	if len(f.agent.deployCalls) != 1 {
		t.Fatalf("Expected 1 agent deploy call, got %d", len(f.agent.deployCalls))
	}
	call := f.agent.deployCalls[0]
	if call.AccountToolInstanceId != inst.Id {
		t.Fatalf("Expected instance id %s in agent payload, got %s", inst.Id, call.AccountToolInstanceId)
	}
	if call.DockerImageUrl != "registry.example.com/code-server:4.19" {
		t.Fatalf("Unexpected image in agent payload: %s", call.DockerImageUrl)
	}
}

func TestDeploy_RequiresActiveEnvironment(t *testing.T) {
	f := newDispatcherFixture(t)

	f.env.Status = models.EnvStatusUnresponsive
	if err := f.envRepo.Update(context.Background(), f.env); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	_, err := f.svc.Deploy(context.Background(), owner, f.env.Id, models.DeployToolRequest{
		CatalogEntryId: "ct-1",
		InstanceName:   "code-server",
	})

	var precondition *StatePreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("Expected StatePreconditionError, got %v", err)
	}
	if len(f.agent.deployCalls) != 0 {
		t.Fatal("Expected no agent call for inactive environment")
	}
}

func TestDeploy_DuplicateInstanceName(t *testing.T) {
	f := newDispatcherFixture(t)

	if _, err := f.svc.Deploy(context.Background(), owner, f.env.Id, models.DeployToolRequest{
		CatalogEntryId: "ct-1",
		InstanceName:   "code-server",
	}); err != nil {
		t.Fatalf("First deploy failed: %v", err)
	}

	if _, err := f.svc.Deploy(context.Background(), owner, f.env.Id, models.DeployToolRequest{
		CatalogEntryId: "ct-1",
		InstanceName:   "code-server",
	}); err == nil {
		t.Fatal("Expected duplicate instance name to be rejected")
	}
}

func TestDeploy_AgentFailureRecorded(t *testing.T) {
	f := newDispatcherFixture(t)
	f.agent.deployErr = ErrAgentUnreachable

	_, err := f.svc.Deploy(context.Background(), owner, f.env.Id, models.DeployToolRequest{
		CatalogEntryId: "ct-1",
		InstanceName:   "code-server",
	})
	if !errors.Is(err, ErrAgentUnreachable) {
		t.Fatalf("Expected ErrAgentUnreachable, got %v", err)
	}

	// The failed record is kept for inspection, not rolled back
	instances, _ := f.instRepo.GetByEnvironment(context.Background(), f.env.Id)
	if len(instances) != 1 {
		t.Fatalf("Expected 1 instance record, got %d", len(instances))
	}
	if instances[0].Status != models.InstanceStatusErrorDeploying {
		t.Fatalf("Expected status %s, got %s", models.InstanceStatusErrorDeploying, instances[0].Status)
	}
	if instances[0].LastError == "" {
		t.Fatal("Expected failure reason on the record")
	}
}

func TestDeploy_Unauthorized(t *testing.T) {
	f := newDispatcherFixture(t)

	_, err := f.svc.Deploy(context.Background(), intruder, f.env.Id, models.DeployToolRequest{
		CatalogEntryId: "ct-1",
		InstanceName:   "code-server",
	})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}

	instances, _ := f.instRepo.GetByEnvironment(context.Background(), f.env.Id)
	if len(instances) != 0 {
		t.Fatal("Expected no instance record after unauthorized deploy")
	}
}

func TestDeploy_AdminBypassesOwnership(t *testing.T) {
	f := newDispatcherFixture(t)

	if _, err := f.svc.Deploy(context.Background(), admin, f.env.Id, models.DeployToolRequest{
		CatalogEntryId: "ct-1",
		InstanceName:   "admin-tool",
	}); err != nil {
		t.Fatalf("Expected admin deploy to succeed, got %v", err)
	}
}

func TestStart_Success(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusStopped)

	inst, err := f.svc.Start(context.Background(), owner, seeded.Id)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Status != models.InstanceStatusRunning {
		t.Fatalf("Expected status %s, got %s", models.InstanceStatusRunning, inst.Status)
	}
	if len(f.agent.started) != 1 || f.agent.started[0] != seeded.NameOnToolbox {
		t.Fatalf("Expected agent start for %s, got %v", seeded.NameOnToolbox, f.agent.started)
	}
}

func TestStart_RequiresStoppedStatus(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusRunning)

	_, err := f.svc.Start(context.Background(), owner, seeded.Id)
	var precondition *StatePreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("Expected StatePreconditionError, got %v", err)
	}

	stored, _ := f.instRepo.stored(seeded.Id)
	if stored.Status != models.InstanceStatusRunning {
		t.Fatalf("Expected status unchanged, got %s", stored.Status)
	}
	if len(f.agent.started) != 0 {
		t.Fatal("Expected no agent call on precondition failure")
	}
}

func TestStart_RequiresActiveEnvironment(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusStopped)

	f.env.Status = models.EnvStatusUnresponsive
	if err := f.envRepo.Update(context.Background(), f.env); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	_, err := f.svc.Start(context.Background(), owner, seeded.Id)
	var precondition *StatePreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("Expected StatePreconditionError, got %v", err)
	}
	if len(f.agent.started) != 0 {
		t.Fatal("Expected no agent call for inactive environment")
	}
}

func TestStop_Success(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusRunning)

	inst, err := f.svc.Stop(context.Background(), owner, seeded.Id)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if inst.Status != models.InstanceStatusStopped {
		t.Fatalf("Expected status %s, got %s", models.InstanceStatusStopped, inst.Status)
	}
}

func TestStop_AgentFailureRecorded(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusRunning)
	f.agent.stopErr = &AgentProtocolError{StatusCode: 503, Detail: "agent busy"}

	if _, err := f.svc.Stop(context.Background(), owner, seeded.Id); err == nil {
		t.Fatal("Expected stop to fail")
	}

	stored, _ := f.instRepo.stored(seeded.Id)
	if stored.Status != models.InstanceStatusErrorStopping {
		t.Fatalf("Expected status %s, got %s", models.InstanceStatusErrorStopping, stored.Status)
	}
}

func TestRemove_Success(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusRunning)

	if err := f.svc.Remove(context.Background(), owner, seeded.Id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, ok := f.instRepo.stored(seeded.Id); ok {
		t.Fatal("Expected instance record to be deleted")
	}
	if len(f.agent.removed) != 1 {
		t.Fatalf("Expected 1 agent remove call, got %d", len(f.agent.removed))
	}
}

func TestRemove_AllowedFromErrorState(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusErrorDeploying)

	// Removal has no status precondition: it is how stuck instances get cleared
	if err := f.svc.Remove(context.Background(), owner, seeded.Id); err != nil {
		t.Fatalf("Remove from error state failed: %v", err)
	}
}

func TestRemove_AgentFailureRecorded(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusRunning)
	f.agent.removeErr = ErrAgentUnreachable

	if err := f.svc.Remove(context.Background(), owner, seeded.Id); err == nil {
		t.Fatal("Expected remove to fail")
	}

	stored, ok := f.instRepo.stored(seeded.Id)
	if !ok {
		t.Fatal("Expected instance record to survive failed removal")
	}
	if stored.Status != models.InstanceStatusErrorDeleting {
		t.Fatalf("Expected status %s, got %s", models.InstanceStatusErrorDeleting, stored.Status)
	}
}

func TestUpdateFromAgentReport(t *testing.T) {
	f := newDispatcherFixture(t)
	seeded := f.seedInstance(t, "ti-1", models.InstanceStatusDeploying)
	heartbeat := time.Now()

	tests := []struct {
		name     string
		reported string
		want     models.InstanceStatus
	}{
		{name: "running maps to running", reported: "RUNNING", want: models.InstanceStatusRunning},
		{name: "stopped maps to stopped", reported: "STOPPED", want: models.InstanceStatusStopped},
		{name: "pending maps to deploying", reported: "PENDING", want: models.InstanceStatusDeploying},
		{name: "unknown maps to error", reported: "SOMETHING_NEW", want: models.InstanceStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := f.svc.UpdateFromAgentReport(context.Background(), seeded.Id, tt.reported, heartbeat)
			if err != nil {
				t.Fatalf("UpdateFromAgentReport failed: %v", err)
			}
			if inst.Status != tt.want {
				t.Fatalf("Expected status %s, got %s", tt.want, inst.Status)
			}
			if inst.LastAgentHeartbeatAt == nil || !inst.LastAgentHeartbeatAt.Equal(heartbeat) {
				t.Fatal("Expected heartbeat timestamp recorded")
			}
		})
	}
}

func TestUpdateFromAgentReport_UnknownInstanceIgnored(t *testing.T) {
	f := newDispatcherFixture(t)

	inst, err := f.svc.UpdateFromAgentReport(context.Background(), "ti-ghost", "RUNNING", time.Now())
	if err != nil {
		t.Fatalf("Expected unknown instance to be ignored, got %v", err)
	}
	if inst != nil {
		t.Fatal("Expected nil instance for unknown id")
	}
}
