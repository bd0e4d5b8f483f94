package googleapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OneClickTag/tracksync/internal/syncexec"
)

func TestAdsClient_ListConversionActions(t *testing.T) {
	// Mock Server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers/cust-1/conversionActions" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := r.Header.Get("developer-token"); got != "dev-token" {
			t.Errorf("missing developer token, got %q", got)
		}

		response := map[string]any{
			"conversionActions": []map[string]any{
				{"id": "ca-1", "name": "Signup (trk-1)", "label": "AbCdEf"},
				{"id": "ca-2", "name": "Purchase (trk-2)", "label": ""},
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewAdsClient(AdsConfig{BaseURL: server.URL, DeveloperToken: "dev-token"})

	actions, err := client.ListConversionActions(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].ID != "ca-1" || actions[0].Label != "AbCdEf" {
		t.Errorf("unexpected first action: %+v", actions[0])
	}
	if actions[1].Label != "" {
		t.Errorf("pending label must stay empty, got %q", actions[1].Label)
	}
}

func TestAdsClient_RateLimitErrorCarriesStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Resource has been exhausted", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewAdsClient(AdsConfig{BaseURL: server.URL, DeveloperToken: "dev-token"})

	_, err := client.CreateConversionAction(context.Background(), "cust-1", "Signup")
	if err == nil {
		t.Fatal("expected error")
	}
	// The retry layer matches on the status code in the message.
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error must carry the status code: %v", err)
	}
	if !strings.Contains(err.Error(), "Resource has been exhausted") {
		t.Errorf("error must carry the response body: %v", err)
	}
}

func TestTagManagerClient_CreateTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workspaces/ws-1/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["type"] != "awct" {
			t.Errorf("expected type awct, got %v", body["type"])
		}
		if body["conversionLabel"] != "AbCdEf" {
			t.Errorf("expected conversion label forwarded, got %v", body["conversionLabel"])
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "tag-9", "name": body["name"]})
	}))
	defer server.Close()

	client := NewTagManagerClient(TagManagerConfig{BaseURL: server.URL, AccessToken: "tok"})

	tag, err := client.CreateTag(context.Background(), "ws-1", syncexec.TagSpec{
		Name:            "Purchase - conversion tag (trk-1)",
		Type:            syncexec.TagTypeAdsConversion,
		TriggerID:       "trig-1",
		ConversionLabel: "AbCdEf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag.ID != "tag-9" {
		t.Errorf("expected tag-9, got %s", tag.ID)
	}
}

func TestTagManagerClient_EnsureWorkspace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenants/tenant-1/workspaces:ensure" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"workspaceId": "ws-42"})
	}))
	defer server.Close()

	client := NewTagManagerClient(TagManagerConfig{BaseURL: server.URL, AccessToken: "tok"})

	id, err := client.EnsureWorkspace(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ws-42" {
		t.Errorf("expected ws-42, got %s", id)
	}
}
