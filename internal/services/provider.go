package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maverick-software/toolboxd/internal/logger"
	"github.com/maverick-software/toolboxd/internal/models"
)

// ProviderErrorKind classifies compute provider failures.
type ProviderErrorKind string

const (
	ProviderErrNotFound    ProviderErrorKind = "not_found"
	ProviderErrRateLimited ProviderErrorKind = "rate_limited"
	ProviderErrAuthFailed  ProviderErrorKind = "auth_failed"
	ProviderErrUnexpected  ProviderErrorKind = "unexpected"
)

// ProviderError wraps a compute provider failure with its taxonomy kind.
type ProviderError struct {
	Kind ProviderErrorKind
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderNotFound reports whether err is a provider not-found condition.
// Deletion treats not-found as benign (the instance is already gone).
func IsProviderNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderErrNotFound
}

// isProviderRetryable reports whether a retry could plausibly succeed.
// NotFound and AuthFailed never resolve by retrying.
func isProviderRetryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == ProviderErrRateLimited || pe.Kind == ProviderErrUnexpected
}

// ProviderInstance is the provider-reported view of one compute instance.
type ProviderInstance struct {
	Id         string
	Status     models.ProviderInstanceStatus
	PublicIPv4 string
	Tags       []string
}

// CreateInstanceRequest carries everything needed to create a compute instance.
// UserData is the cloud-init document; it embeds secrets and must never be logged.
type CreateInstanceRequest struct {
	Name     string
	Region   string
	Size     string
	Image    string
	SSHKeys  []string
	Tags     []string
	UserData string
}

// Provider is the narrow interface to the cloud compute provider.
type Provider interface {
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (*ProviderInstance, error)
	GetInstance(ctx context.Context, id string) (*ProviderInstance, error)
	DeleteInstance(ctx context.Context, id string) error
	ListInstancesByTag(ctx context.Context, tag string) ([]*ProviderInstance, error)
}

// RetryPolicy parameterizes the retry decorator.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is applied to the provider client at composition time.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
}

// RetryingProvider decorates a Provider with bounded retry and exponential
// backoff on retryable failures. It is composed explicitly around the inner
// client so the policy is testable in isolation from the business logic.
type RetryingProvider struct {
	inner  Provider
	policy RetryPolicy
}

// NewRetryingProvider wraps a Provider with the given retry policy
func NewRetryingProvider(inner Provider, policy RetryPolicy) *RetryingProvider {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingProvider{
		inner:  inner,
		policy: policy,
	}
}

// CreateInstance creates a compute instance, retrying on transient failures
func (p *RetryingProvider) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*ProviderInstance, error) {
	var instance *ProviderInstance
	err := p.retry(ctx, "create_instance", func() error {
		var err error
		instance, err = p.inner.CreateInstance(ctx, req)
		return err
	})
	return instance, err
}

// GetInstance fetches a compute instance, retrying on transient failures
func (p *RetryingProvider) GetInstance(ctx context.Context, id string) (*ProviderInstance, error) {
	var instance *ProviderInstance
	err := p.retry(ctx, "get_instance", func() error {
		var err error
		instance, err = p.inner.GetInstance(ctx, id)
		return err
	})
	return instance, err
}

// DeleteInstance deletes a compute instance, retrying on transient failures.
// A not-found outcome is surfaced to the caller, never retried.
func (p *RetryingProvider) DeleteInstance(ctx context.Context, id string) error {
	return p.retry(ctx, "delete_instance", func() error {
		return p.inner.DeleteInstance(ctx, id)
	})
}

// ListInstancesByTag lists instances carrying a tag, retrying on transient failures
func (p *RetryingProvider) ListInstancesByTag(ctx context.Context, tag string) ([]*ProviderInstance, error) {
	var instances []*ProviderInstance
	err := p.retry(ctx, "list_instances", func() error {
		var err error
		instances, err = p.inner.ListInstancesByTag(ctx, tag)
		return err
	})
	return instances, err
}

// retry runs fn up to MaxAttempts times with exponential backoff
func (p *RetryingProvider) retry(ctx context.Context, op string, fn func() error) error {
	delay := p.policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isProviderRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.policy.MaxAttempts {
			break
		}

		logger.WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt,
			"error":   lastErr.Error(),
		}).Warn("Provider call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return lastErr
}
