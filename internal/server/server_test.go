package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// newTestServer boots the API on a loopback port with the legacy actor
// header enabled and three seeded users: boss (admin), dev (developer),
// eve (viewer).
func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	for _, seed := range []struct{ id, role string }{
		{"boss", "admin"},
		{"dev", "developer"},
		{"eve", "viewer"},
	} {
		if _, err := e.CreateUser(context.Background(), engine.UserCreateOptions{
			ID:    seed.id,
			Name:  "User " + seed.id,
			Email: seed.id + "@example.com",
			Role:  seed.role,
		}); err != nil {
			t.Fatalf("seed user %s: %v", seed.id, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asBoss() map[string]string { return map[string]string{"X-User-Id": "boss"} }
func asDev() map[string]string  { return map[string]string{"X-User-Id": "dev"} }

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestProjectTaskReportFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"id":   "p1",
		"name": "Apollo",
	}, asBoss())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/p1", map[string]any{
		"status": "active",
	}, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activate project: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/p1/tasks", map[string]any{
		"title":       "Ship dashboard",
		"assigned_to": "dev",
	}, asBoss())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/p1/tasks/"+task.ID, map[string]any{
		"status":       "done",
		"actual_hours": 6.5,
	}, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete task: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/p1/tasks/"+task.ID+"/time", map[string]any{
		"hours_spent": 2.5,
		"billable":    true,
	}, asBoss())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("log time: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/overview", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("overview: %d %s", res.StatusCode, string(data))
	}
	var overview struct {
		RangeDays int `json:"range_days"`
		Tasks     struct {
			Total          int `json:"total"`
			CompletionRate int `json:"completion_rate"`
		} `json:"tasks"`
		Time struct {
			TotalHours    float64 `json:"total_hours"`
			BillableHours float64 `json:"billable_hours"`
		} `json:"time"`
		Users    *json.RawMessage `json:"users"`
		Personal *json.RawMessage `json:"personal"`
	}
	if err := json.Unmarshal(data, &overview); err != nil {
		t.Fatalf("unmarshal overview: %v", err)
	}
	if overview.RangeDays != 30 {
		t.Fatalf("default range: %d", overview.RangeDays)
	}
	if overview.Tasks.Total != 1 || overview.Tasks.CompletionRate != 100 {
		t.Fatalf("task summary: %+v", overview.Tasks)
	}
	if overview.Time.TotalHours != 2.5 || overview.Time.BillableHours != 2.5 {
		t.Fatalf("time summary: %+v", overview.Time)
	}
	if overview.Users == nil || overview.Personal != nil {
		t.Fatalf("admin overview carries user stats, not personal")
	}

	// Developers get the personal block instead.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/overview", nil, asDev())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev overview: %d %s", res.StatusCode, string(data))
	}
	// Reset fields left over from the admin unmarshal; keys omitted from the
	// developer response would otherwise keep their previous values.
	overview.Users, overview.Personal = nil, nil
	if err := json.Unmarshal(data, &overview); err != nil {
		t.Fatalf("unmarshal dev overview: %v", err)
	}
	if overview.Personal == nil || overview.Users != nil {
		t.Fatalf("developer overview carries personal stats, not user stats")
	}
}

func TestTeamReportForbiddenForDeveloper(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/team", nil, asDev())
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "access_denied" {
		t.Fatalf("error code: %s", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/team", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin team report: %d %s", res.StatusCode, string(data))
	}
}

func TestSystemReportAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/system", nil, map[string]string{"X-User-Id": "eve"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/system", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin system report: %d %s", res.StatusCode, string(data))
	}
}

func TestReportInvalidRange(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/overview?range=banana", nil, asBoss())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_range" {
		t.Fatalf("error code: %s", code)
	}
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/overview", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}

	// Health stays open.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestProjectReportScope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"id":   "p1",
		"name": "Apollo",
	}, asBoss())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/projects/p1", nil, asDev())
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member project report: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/p1/members", map[string]any{
		"user_id": "dev",
	}, asBoss())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add member: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/projects/p1", nil, asDev())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member project report: %d %s", res.StatusCode, string(data))
	}
	var report struct {
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
		MemberCount int `json:"member_count"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Project.ID != "p1" || report.MemberCount != 2 {
		t.Fatalf("project report: %+v", report)
	}
}

func TestExportFormats(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/export?format=csv", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("csv export: %d %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("csv content type: %s", ct)
	}
	if !bytes.HasPrefix(data, []byte("section,metric,value")) {
		t.Fatalf("csv header missing: %s", string(data[:min(len(data), 60)]))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/export", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("json export: %d %s", res.StatusCode, string(data))
	}
	var export struct {
		ExportedBy string          `json:"exported_by"`
		Report     json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if export.ExportedBy != "boss" || len(export.Report) == 0 {
		t.Fatalf("export payload: %s", string(data))
	}
}

func TestDevLoginBearer(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"user_id": "boss",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" || login.Role != "admin" {
		t.Fatalf("login payload: %+v", login)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with bearer: %d %s", res.StatusCode, string(data))
	}
	var me UserResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ID != "boss" {
		t.Fatalf("me: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"email": "dev@example.com",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login by email: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Role != "developer" {
		t.Fatalf("login by email payload: %+v", login)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty login: %d %s", res.StatusCode, string(data))
	}
}
