package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryingProvider_RetriesTransientFailures(t *testing.T) {
	calls := 0
	inner := &fakeProvider{
		getFunc: func(ctx context.Context, id string) (*ProviderInstance, error) {
			calls++
			if calls < 3 {
				return nil, &ProviderError{Kind: ProviderErrRateLimited, Op: "get_instance", Err: errors.New("429")}
			}
			return &ProviderInstance{Id: id}, nil
		},
	}

	p := NewRetryingProvider(inner, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	instance, err := p.GetInstance(context.Background(), "droplet-1")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if instance.Id != "droplet-1" {
		t.Fatalf("Unexpected instance: %+v", instance)
	}
	if calls != 3 {
		t.Fatalf("Expected 3 attempts, got %d", calls)
	}
}

func TestRetryingProvider_BoundedAttempts(t *testing.T) {
	calls := 0
	inner := &fakeProvider{
		createFunc: func(ctx context.Context, req CreateInstanceRequest) (*ProviderInstance, error) {
			calls++
			return nil, &ProviderError{Kind: ProviderErrUnexpected, Op: "create_instance", Err: errors.New("500")}
		},
	}

	p := NewRetryingProvider(inner, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	if _, err := p.CreateInstance(context.Background(), CreateInstanceRequest{}); err == nil {
		t.Fatal("Expected failure after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("Expected exactly 3 attempts, got %d", calls)
	}
}

func TestRetryingProvider_NonRetryableKinds(t *testing.T) {
	tests := []struct {
		name string
		kind ProviderErrorKind
	}{
		{name: "not found is never retried", kind: ProviderErrNotFound},
		{name: "auth failure is never retried", kind: ProviderErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			inner := &fakeProvider{
				deleteFunc: func(ctx context.Context, id string) error {
					calls++
					return &ProviderError{Kind: tt.kind, Op: "delete_instance", Err: errors.New("nope")}
				},
			}

			p := NewRetryingProvider(inner, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

			if err := p.DeleteInstance(context.Background(), "droplet-1"); err == nil {
				t.Fatal("Expected error")
			}
			if calls != 1 {
				t.Fatalf("Expected 1 attempt, got %d", calls)
			}
		})
	}
}

func TestRetryingProvider_ContextCancellation(t *testing.T) {
	inner := &fakeProvider{
		getFunc: func(ctx context.Context, id string) (*ProviderInstance, error) {
			return nil, &ProviderError{Kind: ProviderErrRateLimited, Op: "get_instance", Err: errors.New("429")}
		},
	}

	p := NewRetryingProvider(inner, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetInstance(ctx, "droplet-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestIsProviderNotFound(t *testing.T) {
	notFound := &ProviderError{Kind: ProviderErrNotFound, Op: "get_instance", Err: errors.New("404")}
	if !IsProviderNotFound(notFound) {
		t.Fatal("Expected not-found to be detected")
	}
	if !IsProviderNotFound(errors.Join(errors.New("wrapped"), notFound)) {
		t.Fatal("Expected not-found to be detected through wrapping")
	}
	if IsProviderNotFound(errors.New("plain error")) {
		t.Fatal("Plain errors must not be classified as not-found")
	}
	if IsProviderNotFound(&ProviderError{Kind: ProviderErrUnexpected, Err: errors.New("500")}) {
		t.Fatal("Unexpected kind must not be classified as not-found")
	}
}
