package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"credgate/internal/broker"
	"credgate/internal/netguard"
)

type fakeProvider struct {
	values map[string]string
	err    error
}

func (f *fakeProvider) Get(_ context.Context, key string, _ bool) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	value, ok := f.values[key]
	return value, ok, nil
}

type fakeAdmin struct {
	saved   map[string]string
	deleted []string
	err     error
}

func (f *fakeAdmin) Set(_ context.Context, key, value string, _ bool, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = value
	return nil
}

func (f *fakeAdmin) Delete(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestHandler(provider broker.Provider) *Handler {
	classifier := netguard.NewClassifier(func() string { return "" })
	runtimeCtx := broker.RuntimeContext{AdapterHost: "credgate-adapter", AdapterPort: "8051"}
	return NewHandler(classifier, broker.New(provider, runtimeCtx), &fakeAdmin{}, nil)
}

func requestFrom(remoteAddr, method, target string) *http.Request {
	request := httptest.NewRequest(method, target, nil)
	request.RemoteAddr = remoteAddr
	return request
}

func TestInternalHealth(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := newRouter(h)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestFrom("8.8.8.8:1234", http.MethodGet, "/internal/health"))

	if recorder.Code != http.StatusOK {
		t.Fatalf("health status %d, want 200", recorder.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid health payload: %v", err)
	}
	if payload["status"] != "healthy" || payload["service"] != "internal-api" {
		t.Fatalf("health payload = %v", payload)
	}
}

func TestAgentCredentialsFromInternalAddress(t *testing.T) {
	provider := &fakeProvider{values: map[string]string{"OPENAI_API_KEY": "sk-test"}}
	h := newTestHandler(provider)
	router := newRouter(h)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestFrom("10.0.0.5:49152", http.MethodGet, "/internal/credentials/agents"))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d, want 200; body %s", recorder.Code, recorder.Body.String())
	}

	var bundle map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("invalid bundle payload: %v", err)
	}
	if bundle["OPENAI_API_KEY"] != "sk-test" {
		t.Fatalf("OPENAI_API_KEY = %q, want sk-test", bundle["OPENAI_API_KEY"])
	}
	if bundle["AGENT_MAX_RETRIES"] != "3" {
		t.Fatalf("AGENT_MAX_RETRIES = %q, want default 3", bundle["AGENT_MAX_RETRIES"])
	}
	if bundle["ADAPTER_SERVICE_URL"] != "http://credgate-adapter:8051" {
		t.Fatalf("ADAPTER_SERVICE_URL = %q", bundle["ADAPTER_SERVICE_URL"])
	}
}

func TestAgentCredentialsOmitsUnresolvedKeys(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := newRouter(h)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestFrom("127.0.0.1:40000", http.MethodGet, "/internal/credentials/agents"))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", recorder.Code)
	}

	var bundle map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("invalid bundle payload: %v", err)
	}
	if _, present := bundle["OPENAI_API_KEY"]; present {
		t.Fatal("OPENAI_API_KEY must be omitted when unresolved")
	}
}

func TestCredentialsForbiddenFromExternalAddress(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := newRouter(h)

	for _, remote := range []string{"8.8.8.8:1234", ""} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, requestFrom(remote, http.MethodGet, "/internal/credentials/agents"))

		if recorder.Code != http.StatusForbidden {
			t.Fatalf("remote %q: status %d, want 403", remote, recorder.Code)
		}

		var payload map[string]string
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid error payload: %v", err)
		}
		if payload["error"] != "Access forbidden" {
			t.Fatalf("error payload = %v", payload)
		}
	}
}

func TestCredentialsStoreFailureMapsToServerError(t *testing.T) {
	h := newTestHandler(&fakeProvider{err: errors.New("store unavailable")})
	router := newRouter(h)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestFrom("10.0.0.5:49152", http.MethodGet, "/internal/credentials/agents"))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", recorder.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid error payload: %v", err)
	}
	if payload["error"] != "Failed to retrieve credentials" {
		t.Fatalf("error payload = %v, internal detail must not leak", payload)
	}
}

func TestAdapterCredentials(t *testing.T) {
	provider := &fakeProvider{values: map[string]string{"LOG_LEVEL": "DEBUG"}}
	h := newTestHandler(provider)
	router := newRouter(h)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, requestFrom("192.168.1.20:9000", http.MethodGet, "/internal/credentials/adapter"))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", recorder.Code)
	}

	var bundle map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("invalid bundle payload: %v", err)
	}
	if len(bundle) != 1 || bundle["LOG_LEVEL"] != "DEBUG" {
		t.Fatalf("adapter bundle = %v, want only LOG_LEVEL", bundle)
	}
}

func TestForwardedForHeaderIsIgnored(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := newRouter(h)

	recorder := httptest.NewRecorder()
	request := requestFrom("8.8.8.8:1234", http.MethodGet, "/internal/credentials/agents")
	request.Header.Set("X-Forwarded-For", "127.0.0.1")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403: forwarded headers must not grant trust", recorder.Code)
	}
}
