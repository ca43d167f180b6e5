package provider_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aitester/config"
	"aitester/model"
	"aitester/provider"
	"aitester/provider/testutil"
)

// TestProviderContract defines the contract ALL providers must satisfy:
// chunks arrive in order and concatenate to the answer, and onDone fires
// exactly once after the last chunk.
func TestProviderContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			io.WriteString(w, testutil.NDJSONBody("llama3", "Mock ", "response"))
		case "/chat/completions":
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, testutil.SSEBody("m", "Mock ", "response"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reg := provider.NewRegistry(testutil.TestConfig(srv.URL), srv.Client())

	providers := []model.Provider{testutil.NewMockProvider("mock")}
	providers = append(providers, reg.List()...)

	for _, p := range providers {
		t.Run(p.ID(), func(t *testing.T) {
			var b strings.Builder
			dones := 0
			chunkAfterDone := false

			err := p.StreamGenerate(context.Background(), "hi", "", model.GenerateOptions{Temperature: 0.7, MaxTokens: 64, TopP: 1},
				func(c string) {
					if dones > 0 {
						chunkAfterDone = true
					}
					b.WriteString(c)
				},
				func(res model.GenerateResponse) {
					dones++
					if !res.Done {
						t.Error("final response must have Done set")
					}
				},
			)
			if err != nil {
				t.Fatalf("StreamGenerate: %v", err)
			}
			if b.String() != "Mock response" {
				t.Errorf("text = %q", b.String())
			}
			if dones != 1 {
				t.Errorf("onDone called %d times, want 1", dones)
			}
			if chunkAfterDone {
				t.Error("chunk delivered after onDone")
			}
			if p.Name() == "" {
				t.Error("Name() must not be empty")
			}
		})
	}
}

func TestProviderIDsAreStable(t *testing.T) {
	reg := provider.NewRegistry(testutil.TestConfig("http://127.0.0.1:1"), nil)
	for _, id := range config.ProviderIDs {
		p, err := reg.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", id, err)
		}
		if p.ID() != id {
			t.Errorf("Resolve(%s).ID() = %s", id, p.ID())
		}
	}
}
