package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maverick-software/toolboxd/internal/models"
)

func TestDigitalOceanClient_CreateInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/droplets" {
			t.Fatalf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Fatalf("Missing bearer token, got %q", auth)
		}

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		if payload["name"] != "tb-user-box" {
			t.Fatalf("Unexpected name: %v", payload["name"])
		}
		if payload["user_data"] != "#cloud-config\n" {
			t.Fatalf("Unexpected user_data: %v", payload["user_data"])
		}

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"droplet":{"id":12345,"status":"new","tags":["toolboxd"]}}`))
	}))
	defer server.Close()

	client := NewDigitalOceanClient("test-token", server.URL)

	instance, err := client.CreateInstance(context.Background(), CreateInstanceRequest{
		Name:     "tb-user-box",
		Region:   "nyc3",
		Size:     "s-1vcpu-1gb",
		Image:    "ubuntu-22-04-x64",
		Tags:     []string{"toolboxd"},
		UserData: "#cloud-config\n",
	})
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	if instance.Id != "12345" {
		t.Fatalf("Expected id 12345, got %s", instance.Id)
	}
	if instance.Status != models.ProviderStatusNew {
		t.Fatalf("Expected status new, got %s", instance.Status)
	}
}

func TestDigitalOceanClient_GetInstance_PublicIPSelection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/droplets/12345" {
			t.Fatalf("Unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"droplet":{"id":12345,"status":"active","networks":{"v4":[
			{"ip_address":"10.0.0.7","type":"private"},
			{"ip_address":"203.0.113.5","type":"public"}
		]}}}`))
	}))
	defer server.Close()

	client := NewDigitalOceanClient("test-token", server.URL)

	instance, err := client.GetInstance(context.Background(), "12345")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}

	if instance.Status != models.ProviderStatusActive {
		t.Fatalf("Expected status active, got %s", instance.Status)
	}
	// Private addresses must never be picked
	if instance.PublicIPv4 != "203.0.113.5" {
		t.Fatalf("Expected public IP 203.0.113.5, got %q", instance.PublicIPv4)
	}
}

func TestDigitalOceanClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   ProviderErrorKind
	}{
		{name: "404 not found", statusCode: http.StatusNotFound, wantKind: ProviderErrNotFound},
		{name: "429 rate limited", statusCode: http.StatusTooManyRequests, wantKind: ProviderErrRateLimited},
		{name: "401 auth failed", statusCode: http.StatusUnauthorized, wantKind: ProviderErrAuthFailed},
		{name: "403 auth failed", statusCode: http.StatusForbidden, wantKind: ProviderErrAuthFailed},
		{name: "500 unexpected", statusCode: http.StatusInternalServerError, wantKind: ProviderErrUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(`{"id":"api_error","message":"something happened"}`))
			}))
			defer server.Close()

			client := NewDigitalOceanClient("test-token", server.URL)

			_, err := client.GetInstance(context.Background(), "12345")
			if err == nil {
				t.Fatal("Expected error")
			}

			pe, ok := err.(*ProviderError)
			if !ok {
				t.Fatalf("Expected *ProviderError, got %T", err)
			}
			if pe.Kind != tt.wantKind {
				t.Fatalf("Expected kind %s, got %s", tt.wantKind, pe.Kind)
			}
		})
	}
}

func TestDigitalOceanClient_DeleteInstance(t *testing.T) {
	deleted := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v2/droplets/12345" {
			t.Fatalf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewDigitalOceanClient("test-token", server.URL)
	if err := client.DeleteInstance(context.Background(), "12345"); err != nil {
		t.Fatalf("DeleteInstance failed: %v", err)
	}
	if !deleted {
		t.Fatal("Expected delete request to be issued")
	}
}

func TestDigitalOceanClient_ListInstancesByTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tag_name") != "toolboxd" {
			t.Fatalf("Expected tag_name=toolboxd, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"droplets":[
			{"id":1,"status":"active","tags":["toolboxd"]},
			{"id":2,"status":"off","tags":["toolboxd"]}
		]}`))
	}))
	defer server.Close()

	client := NewDigitalOceanClient("test-token", server.URL)

	instances, err := client.ListInstancesByTag(context.Background(), "toolboxd")
	if err != nil {
		t.Fatalf("ListInstancesByTag failed: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(instances))
	}
	if instances[1].Status != models.ProviderStatusOff {
		t.Fatalf("Expected status off, got %s", instances[1].Status)
	}
}
