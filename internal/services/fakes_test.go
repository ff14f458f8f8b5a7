package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/maverick-software/toolboxd/internal/models"
	"github.com/maverick-software/toolboxd/internal/repository"
)

// fakeEnvRepo is an in-memory EnvironmentRepository for testing
type fakeEnvRepo struct {
	mu   sync.Mutex
	envs map[string]models.Environment
}

func newFakeEnvRepo() *fakeEnvRepo {
	return &fakeEnvRepo{envs: make(map[string]models.Environment)}
}

func (r *fakeEnvRepo) Create(ctx context.Context, env *models.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.envs[env.Id]; ok {
		return repository.ErrAlreadyExists
	}
	r.envs[env.Id] = *env
	return nil
}

func (r *fakeEnvRepo) Get(ctx context.Context, id string) (*models.Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, ok := r.envs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := env
	return &copied, nil
}

func (r *fakeEnvRepo) GetByUserId(ctx context.Context, userId string) ([]*models.Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Environment
	for _, env := range r.envs {
		if env.UserId == userId {
			copied := env
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeEnvRepo) GetAll(ctx context.Context) ([]*models.Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Environment
	for _, env := range r.envs {
		copied := env
		result = append(result, &copied)
	}
	return result, nil
}

func (r *fakeEnvRepo) Update(ctx context.Context, env *models.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.envs[env.Id]; !ok {
		return repository.ErrNotFound
	}
	r.envs[env.Id] = *env
	return nil
}

func (r *fakeEnvRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.envs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.envs, id)
	return nil
}

// mustGet fetches an environment directly, failing the test on absence
func (r *fakeEnvRepo) stored(id string) (models.Environment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, ok := r.envs[id]
	return env, ok
}

// fakeInstanceRepo is an in-memory InstanceRepository for testing
type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]models.Instance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]models.Instance)}
}

func (r *fakeInstanceRepo) Create(ctx context.Context, instance *models.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[instance.Id]; ok {
		return repository.ErrAlreadyExists
	}
	r.instances[instance.Id] = *instance
	return nil
}

func (r *fakeInstanceRepo) Get(ctx context.Context, id string) (*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := instance
	return &copied, nil
}

func (r *fakeInstanceRepo) GetByEnvironment(ctx context.Context, environmentId string) ([]*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Instance
	for _, instance := range r.instances {
		if instance.EnvironmentId == environmentId {
			copied := instance
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeInstanceRepo) Update(ctx context.Context, instance *models.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[instance.Id]; !ok {
		return repository.ErrNotFound
	}
	r.instances[instance.Id] = *instance
	return nil
}

func (r *fakeInstanceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.instances, id)
	return nil
}

func (r *fakeInstanceRepo) DeleteByEnvironment(ctx context.Context, environmentId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, instance := range r.instances {
		if instance.EnvironmentId == environmentId {
			delete(r.instances, id)
		}
	}
	return nil
}

func (r *fakeInstanceRepo) stored(id string) (models.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[id]
	return instance, ok
}

// fakeCatalogRepo is an in-memory CatalogRepository for testing
type fakeCatalogRepo struct {
	mu      sync.Mutex
	entries map[string]models.CatalogEntry
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{entries: make(map[string]models.CatalogEntry)}
}

func (r *fakeCatalogRepo) Create(ctx context.Context, entry *models.CatalogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Id] = *entry
	return nil
}

func (r *fakeCatalogRepo) Get(ctx context.Context, id string) (*models.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := entry
	return &copied, nil
}

func (r *fakeCatalogRepo) GetAll(ctx context.Context) ([]*models.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.CatalogEntry
	for _, entry := range r.entries {
		copied := entry
		result = append(result, &copied)
	}
	return result, nil
}

func (r *fakeCatalogRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

// fakeSecretStore is an in-memory SecretStore for testing
type fakeSecretStore struct {
	mu      sync.Mutex
	secrets map[string]string
	nextRef int
}

func newFakeSecretStore() *fakeSecretStore {
	return &fakeSecretStore{secrets: make(map[string]string)}
}

func (s *fakeSecretStore) CreateSecret(ctx context.Context, name, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRef++
	ref := fmt.Sprintf("sec-%d", s.nextRef)
	s.secrets[ref] = value
	return ref, nil
}

func (s *fakeSecretStore) GetSecret(ctx context.Context, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.secrets[ref]
	if !ok {
		return "", repository.ErrNotFound
	}
	return value, nil
}

func (s *fakeSecretStore) DeleteSecret(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, ref)
	return nil
}

func (s *fakeSecretStore) has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.secrets[ref]
	return ok
}

// fakeProvider is a scriptable Provider for testing. Each method can be
// overridden per test; the defaults succeed with a minimal instance.
type fakeProvider struct {
	mu sync.Mutex

	createFunc func(ctx context.Context, req CreateInstanceRequest) (*ProviderInstance, error)
	getFunc    func(ctx context.Context, id string) (*ProviderInstance, error)
	deleteFunc func(ctx context.Context, id string) error
	listFunc   func(ctx context.Context, tag string) ([]*ProviderInstance, error)

	createCalls int
	getCalls    int
	deleteCalls int

	lastCreate CreateInstanceRequest
}

func (p *fakeProvider) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*ProviderInstance, error) {
	p.mu.Lock()
	p.createCalls++
	p.lastCreate = req
	fn := p.createFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &ProviderInstance{Id: "droplet-1", Status: models.ProviderStatusNew}, nil
}

func (p *fakeProvider) GetInstance(ctx context.Context, id string) (*ProviderInstance, error) {
	p.mu.Lock()
	p.getCalls++
	fn := p.getFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return &ProviderInstance{Id: id, Status: models.ProviderStatusActive, PublicIPv4: "203.0.113.5"}, nil
}

func (p *fakeProvider) DeleteInstance(ctx context.Context, id string) error {
	p.mu.Lock()
	p.deleteCalls++
	fn := p.deleteFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

func (p *fakeProvider) ListInstancesByTag(ctx context.Context, tag string) ([]*ProviderInstance, error) {
	p.mu.Lock()
	fn := p.listFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, tag)
	}
	return nil, nil
}

// fakeAgent is a scriptable AgentAPI for testing
type fakeAgent struct {
	mu sync.Mutex

	statusFunc func(ctx context.Context, ip string) (*models.AgentStatusReport, error)
	deployErr  error
	startErr   error
	stopErr    error
	removeErr  error

	deployCalls []models.AgentDeployRequest
	started     []string
	stopped     []string
	removed     []string
}

func (a *fakeAgent) Status(ctx context.Context, ip string) (*models.AgentStatusReport, error) {
	if a.statusFunc != nil {
		return a.statusFunc(ctx, ip)
	}
	return &models.AgentStatusReport{Version: "1.0.0"}, nil
}

func (a *fakeAgent) DeployTool(ctx context.Context, ip string, req models.AgentDeployRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deployErr != nil {
		return a.deployErr
	}
	a.deployCalls = append(a.deployCalls, req)
	return nil
}

func (a *fakeAgent) StartTool(ctx context.Context, ip, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return a.startErr
	}
	a.started = append(a.started, name)
	return nil
}

func (a *fakeAgent) StopTool(ctx context.Context, ip, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopErr != nil {
		return a.stopErr
	}
	a.stopped = append(a.stopped, name)
	return nil
}

func (a *fakeAgent) RemoveTool(ctx context.Context, ip, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.removeErr != nil {
		return a.removeErr
	}
	a.removed = append(a.removed, name)
	return nil
}

// fakeResolver is a pass-through ImageResolver for testing
type fakeResolver struct {
	err error
}

func (r *fakeResolver) ResolveImage(ctx context.Context, imageRef string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return imageRef, nil
}
