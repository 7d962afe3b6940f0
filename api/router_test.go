package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auditflow/internal/config"
	"auditflow/internal/domain"
	"auditflow/internal/logger"
	"auditflow/internal/testkit"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type apiFixture struct {
	t         *testing.T
	router    *gin.Engine
	container *AppContainer
	tokens    map[string]string
	template  string
	questions []string
}

func setupAPI(t *testing.T) *apiFixture {
	gin.SetMode(gin.TestMode)
	logger.Replace(zaptest.NewLogger(t))
	t.Cleanup(func() { logger.Replace(nil) })

	db := testkit.OpenDB(t)
	cfg := &config.Config{
		Server:       config.ServerConfig{Mode: "test"},
		Redis:        config.RedisConfig{Mode: "disabled"},
		Auth:         config.AuthConfig{JWTSecret: "test-secret", Issuer: "auditflow"},
		Notification: config.NotificationConfig{Channel: "log"},
		Evidence:     config.EvidenceConfig{BasePath: t.TempDir(), PublicURL: "/evidence", MaxFileSize: 1 << 20},
		Capture:      config.CaptureConfig{UpsertRetries: 1},
	}
	container, err := InitContainer(db, cfg)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	assert.Nil(t, container.WorkerServer, "no worker without redis")

	tmpl, questions := testkit.PublishedTemplate(t, container.Catalog)

	f := &apiFixture{
		t:         t,
		router:    SetupRouter(container),
		container: container,
		tokens:    map[string]string{},
		template:  tmpl.ID,
		questions: questions,
	}
	for id, actor := range testkit.Actors {
		token, err := container.JWTService.IssueToken(id, actor.Roles)
		require.NoError(t, err)
		f.tokens[id] = token
	}
	return f
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(user, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[user])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

func (f *apiFixture) createAudit() domain.Audit {
	f.t.Helper()
	w, env := f.do(testkit.Admin, http.MethodPost, "/api/audits", map[string]any{
		"template_id":      f.template,
		"target_type":      "machine",
		"target_ref":       "PRESS-07",
		"scheduled_date":   "2026-03-10T00:00:00Z",
		"l1_auditor_id":    testkit.L1,
		"l2_auditor_id":    testkit.L2,
		"process_owner_id": testkit.Owner,
	})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Audit](f.t, env)
}

func TestSystemEndpoints(t *testing.T) {
	f := setupAPI(t)

	w, _ := f.do("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = f.do("", http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"disabled"`)

	w, _ = f.do("", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthAndAdminGuards(t *testing.T) {
	f := setupAPI(t)

	w, env := f.do("", http.MethodGet, "/api/audits", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	w, _ = f.do(testkit.L1, http.MethodPost, "/api/audits", map[string]any{"template_id": f.template})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(testkit.L1, http.MethodPost, "/api/templates/"+f.template+"/publish", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(testkit.Admin, http.MethodPost, "/api/audits", map[string]any{"template_id": f.template})
	assert.Equal(t, http.StatusBadRequest, w.Code, "binding rejects incomplete body")
}

func TestAuditVisibility(t *testing.T) {
	f := setupAPI(t)
	a := f.createAudit()

	w, env := f.do(testkit.L1, http.MethodGet, "/api/audits/"+a.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[map[string]any](t, env)
	assert.Equal(t, a.ID, view["id"])
	assert.Len(t, view["questions"], 2)

	w, _ = f.do(testkit.Other, http.MethodGet, "/api/audits/"+a.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(testkit.Admin, http.MethodGet, "/api/audits/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = f.do(testkit.Other, http.MethodGet, "/api/audits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Items []domain.Audit `json:"items"`
	}](t, env)
	assert.Empty(t, list.Items)

	w, env = f.do(testkit.Owner, http.MethodGet, "/api/audits?status=Assigned", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[struct {
		Items []domain.Audit `json:"items"`
	}](t, env)
	assert.Len(t, list.Items, 1)
}

func TestWorkflowOverHTTP(t *testing.T) {
	f := setupAPI(t)
	a := f.createAudit()
	base := "/api/audits/" + a.ID

	w, _ := f.do(testkit.L1, http.MethodPut, base+"/answers/"+f.questions[0], map[string]any{"value": "yes"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = f.do(testkit.L2, http.MethodPut, base+"/answers/"+f.questions[1], map[string]any{"value": "no"})
	assert.Equal(t, http.StatusForbidden, w.Code, "only the assigned L1 captures")

	w, env := f.do(testkit.L1, http.MethodPost, base+"/ncs", map[string]any{
		"ref_kind":    "checklist_answer",
		"ref_key":     f.questions[1],
		"description": "Work instruction outdated",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	nc := decode[domain.NonConformance](t, env)

	w, env = f.do(testkit.L1, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusNCPendingVerify, decode[domain.Audit](t, env).Status)

	w, env = f.do(testkit.Owner, http.MethodGet, "/api/ncs/assigned", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), nc.ID)

	w, _ = f.do(testkit.L1, http.MethodPost, "/api/ncs/"+nc.ID+"/verify", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "cannot verify an open NC")

	w, _ = f.do(testkit.Owner, http.MethodPost, "/api/ncs/"+nc.ID+"/resolve", map[string]any{"root_cause": "old rev"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(testkit.Owner, http.MethodPost, "/api/ncs/"+nc.ID+"/resolve", map[string]any{
		"root_cause":        "Old revision posted",
		"corrective_action": "Posted rev C",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = f.do(testkit.L1, http.MethodPost, "/api/ncs/"+nc.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = f.do(testkit.L2, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = f.do(testkit.L1, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusSubmittedToL2, decode[domain.Audit](t, env).Status)

	w, env = f.do(testkit.L2, http.MethodPost, base+"/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, env.Message)

	w, env = f.do(testkit.L2, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[struct {
		Answers []domain.ChecklistAnswer `json:"answers"`
	}](t, env)
	require.Len(t, view.Answers, 1)

	w, _ = f.do(testkit.L2, http.MethodPut, base+"/answers/"+view.Answers[0].ID+"/score", map[string]any{"score": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(testkit.L2, http.MethodPut, base+"/answers/"+view.Answers[0].ID+"/score", map[string]any{"score": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = f.do(testkit.L2, http.MethodPost, base+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusCompleted, decode[domain.Audit](t, env).Status)

	w, env = f.do(testkit.L1, http.MethodGet, base+"/compliance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 100.0, decode[map[string]any](t, env)["percentage"], 1e-9)

	w, env = f.do(testkit.L1, http.MethodGet, base+"/logs?page_size=100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[struct {
		Items []struct {
			Action string `json:"action"`
		} `json:"items"`
	}](t, env)
	require.NotEmpty(t, logs.Items)
	assert.Equal(t, "audit.scheduled", logs.Items[0].Action)
	assert.Equal(t, "audit.approved", logs.Items[len(logs.Items)-1].Action)

	w, _ = f.do(testkit.L1, http.MethodGet, base+"/logs?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(testkit.L1, http.MethodGet, base+"/logs.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Equal(t, len(logs.Items)+1, len(lines))

	w, _ = f.do(testkit.Other, http.MethodGet, base+"/logs.csv", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	f := setupAPI(t)
	a := f.createAudit()

	w, _ := f.do(testkit.Admin, http.MethodPost, "/api/admin/audits/"+a.ID+"/assign", map[string]any{"l2_auditor_id": testkit.Other})
	assert.Equal(t, http.StatusConflict, w.Code, "assigned slot cannot be changed")

	w, _ = f.do(testkit.L1, http.MethodPut, "/api/admin/audits/"+a.ID+"/status", map[string]any{"status": "Completed", "reason": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := f.do(testkit.Admin, http.MethodPut, "/api/admin/audits/"+a.ID+"/status", map[string]any{"status": "In_Progress", "reason": "fix data"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusInProgress, decode[domain.Audit](t, env).Status)

	testkit.SeedNC(t, f.container.DB, a.ID, domain.NCOpen)
	w, _ = f.do(testkit.Admin, http.MethodDelete, "/api/admin/audits/"+a.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = f.do(testkit.Admin, http.MethodDelete, "/api/admin/audits/"+a.ID+"?force=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(testkit.Admin, http.MethodGet, "/api/audits/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplateRoutes(t *testing.T) {
	f := setupAPI(t)

	w, env := f.do(testkit.Admin, http.MethodPost, "/api/templates", map[string]any{
		"code": "LPA-DOCK",
		"name": "Dock audit",
		"sections": []map[string]any{{
			"title":     "Receiving",
			"questions": []map[string]any{{"text": "Labels match?"}},
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, env)
	id := created["id"].(string)
	assert.Equal(t, false, created["published"])

	w, _ = f.do(testkit.Admin, http.MethodPost, "/api/templates/"+id+"/publish", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(testkit.Admin, http.MethodPost, "/api/templates/"+id+"/publish", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = f.do(testkit.L1, http.MethodGet, "/api/templates/"+id+"/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, env), 1)

	w, env = f.do(testkit.L1, http.MethodGet, "/api/templates?published_only=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "LPA-DOCK")
}

func TestEvidenceUpload(t *testing.T) {
	f := setupAPI(t)

	upload := func(name string, content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/evidence", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+f.tokens[testkit.L1])
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	w := upload("guard.png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	url := decode[map[string]string](t, env)["url"]
	require.True(t, strings.HasPrefix(url, "/evidence/"), url)

	// 静态文件可直接访问
	got := httptest.NewRecorder()
	f.router.ServeHTTP(got, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "png-bytes", got.Body.String())

	w = upload("script.sh", []byte("#!/bin/sh"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditEventStream(t *testing.T) {
	f := setupAPI(t)
	a := f.createAudit()

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/audits/" + a.ID + "/events?access_token=" + f.tokens[testkit.L1]
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["type"])

	// 等待订阅生效后再触发状态变化
	require.Eventually(t, func() bool { return f.container.EventBus.Subscribers(a.ID) == 1 }, time.Second, 10*time.Millisecond)
	w, _ := f.do(testkit.L1, http.MethodPut, "/api/audits/"+a.ID+"/answers/"+f.questions[0], map[string]any{"value": "yes"})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt map[string]any
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, a.ID, evt["audit_id"])
	assert.Equal(t, "audit.started", evt["action"])
	assert.Equal(t, string(domain.StatusAssigned), evt["from"])
	assert.Equal(t, string(domain.StatusInProgress), evt["to"])
	assert.Equal(t, testkit.L1, evt["actor"])

	_, _, err = websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/api/audits/"+a.ID+"/events?access_token="+f.tokens[testkit.Other], nil)
	assert.Error(t, err, "outsiders cannot subscribe")
}

func (f *apiFixture) doChunked(user, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()
	req := httptest.NewRequest(method, path, io.MultiReader(strings.NewReader(body)))
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.tokens[user])
	require.EqualValues(f.t, -1, req.ContentLength)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestRejectReadsChunkedBody(t *testing.T) {
	f := setupAPI(t)
	a := f.createAudit()
	base := "/api/audits/" + a.ID

	w, _ := f.do(testkit.L1, http.MethodPut, base+"/answers/"+f.questions[0], map[string]any{"value": "yes"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, env := f.do(testkit.L1, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, domain.StatusSubmittedToL2, decode[domain.Audit](t, env).Status)

	w, env = f.doChunked(testkit.L2, http.MethodPost, base+"/reject", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty chunked body carries no reason")
	assert.Contains(t, env.Message, "rejection reason")

	w, env = f.doChunked(testkit.L2, http.MethodPost, base+"/reject", `{"reason":"Torque readings missing"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := decode[domain.Audit](t, env)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "Torque readings missing", rejected.RejectionReason)
}

func TestSwaggerDocListsEveryRoute(t *testing.T) {
	f := setupAPI(t)

	w, _ := f.do("", http.MethodGet, "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc), w.Body.String())

	documented := 0
	for _, r := range f.router.Routes() {
		if r.Path == "/metrics" || strings.Contains(r.Path, "*") {
			continue
		}
		segments := strings.Split(r.Path, "/")
		for i, s := range segments {
			if strings.HasPrefix(s, ":") {
				segments[i] = "{" + s[1:] + "}"
			}
		}
		path := strings.Join(segments, "/")
		ops, ok := doc.Paths[path]
		if assert.True(t, ok, "undocumented path %s", path) {
			assert.Contains(t, ops, strings.ToLower(r.Method), "undocumented %s %s", r.Method, path)
		}
		documented++
	}
	assert.Equal(t, 33, documented)
}
