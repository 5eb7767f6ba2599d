package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"teamflow/api/internal/github"
	"teamflow/api/internal/realtime"
	"teamflow/api/internal/session"
	"teamflow/api/internal/store"
)

type fakeWebhookStore struct {
	projects map[string][]int64
}

func (f *fakeWebhookStore) ProjectIDsByRepoFullName(ctx context.Context, fullName string) ([]int64, error) {
	return f.projects[fullName], nil
}

func (f *fakeWebhookStore) TaskIDInProject(ctx context.Context, taskID, projectID int64) (int64, error) {
	return taskID, nil
}

type fakeActivityLog struct {
	details []string
}

func (f *fakeActivityLog) Append(ctx context.Context, uow *store.UnitOfWork, projectID, taskID, actorID int64, detail string) (store.ActivityEntry, error) {
	f.details = append(f.details, detail)
	return store.ActivityEntry{TaskID: taskID, ActorID: actorID, Detail: detail}, nil
}

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) SendToProject(ctx context.Context, projectID int64, event string, payload any) {
	f.events = append(f.events, event)
}

func newTestServer(t *testing.T) (*HTTPServer, *SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := session.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	manager := NewSessionManager("test-secret", time.Hour, 24*time.Hour, sessions)
	webhook := github.NewWebhookService("hook-secret", "main",
		&fakeWebhookStore{projects: map[string][]int64{"acme/api": {10}}},
		&fakeActivityLog{}, &fakeBroadcaster{})

	svc := Services{
		Sessions: manager,
		Webhook:  webhook,
		Registry: realtime.NewRegistry(),
	}
	return NewHTTPServer(svc, "*"), manager
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSessionEndpointWithToken(t *testing.T) {
	server, manager := newTestServer(t)

	pair, err := manager.Create(context.Background(), store.User{ID: 7, Name: "Avery"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Token)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["userId"] != float64(7) || body["userName"] != "Avery" {
		t.Fatalf("unexpected session payload: %v", body)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(`{}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookAcceptsSignedDelivery(t *testing.T) {
	server, _ := newTestServer(t)

	payload := `{"ref":"refs/heads/main","repository":{"id":1,"full_name":"acme/api"},"pusher":{"name":"octocat"},"commits":[{"id":"abc","message":"fix build"}],"head_commit":{"id":"abc","message":"fix build"}}`
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write([]byte(payload))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", signature)
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var result github.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.ProjectIDs) != 1 || result.ProjectIDs[0] != 10 {
		t.Fatalf("unexpected fan-out: %+v", result)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	server, manager := newTestServer(t)

	pair, err := manager.Create(context.Background(), store.User{ID: 7, Name: "Avery"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	body := `{"refreshToken":"` + pair.RefreshToken + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// The old refresh token must be dead after rotation.
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(body))
	server.Handler().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: status = %d, want 401", rec2.Code)
	}
}
