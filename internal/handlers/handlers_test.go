package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/internal/models"
	"github.com/huangang/larkticket/internal/services"
	"github.com/huangang/larkticket/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubLark serves approval definitions and accepts every write.
type stubLark struct {
	approvals map[string]*lark.ApprovalDefinition
}

func (s stubLark) GetApproval(_ context.Context, code string) (*lark.ApprovalDefinition, error) {
	if def, ok := s.approvals[code]; ok {
		return def, nil
	}
	return nil, &lark.APIError{Op: "get approval", Code: 1390001, Msg: "approval not found"}
}

func (stubLark) GetInstance(context.Context, string) (*lark.ApprovalInstance, error) {
	return nil, lark.ErrNotConfigured
}
func (stubLark) ApproveTask(context.Context, lark.TaskAction) error { return nil }
func (stubLark) RejectTask(context.Context, lark.TaskAction) error  { return nil }
func (stubLark) Subscribe(context.Context, string) error            { return nil }
func (stubLark) Unsubscribe(context.Context, string) error          { return nil }

type testEnv struct {
	router  *gin.Engine
	configs *services.ApprovalConfigService
	queue   *services.SyncQueue
	larkCfg *config.LarkConfig

	mu    sync.Mutex
	tasks []*services.LarkTask
}

func newTestEnv(t *testing.T, larkCfg config.LarkConfig) *testEnv {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	api := stubLark{approvals: map[string]*lark.ApprovalDefinition{
		"A1": {ApprovalCode: "A1", Form: `[{"id":"widget1","name":"Amount"}]`},
	}}
	env := &testEnv{
		configs: services.NewApprovalConfigService(db, api),
		queue:   services.NewSyncQueue(),
		larkCfg: &larkCfg,
	}
	env.queue.SetProcessor(func(_ context.Context, task *services.LarkTask) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.tasks = append(env.tasks, task)
		return nil
	})

	callbacks := services.NewCallbackService(env.configs, api, env.larkCfg)
	configHandler := NewApprovalConfigHandler(env.configs)
	larkHandler := NewLarkHandler(env.larkCfg, env.configs, callbacks, env.queue)

	r := gin.New()
	web := r.Group("/api/v1/web")
	web.GET("/configs", configHandler.List)
	web.GET("/config/:approval_code", configHandler.Get)
	web.POST("/config", configHandler.Create)
	web.PUT("/config", configHandler.Update)
	web.DELETE("/config/:approval_code", configHandler.Delete)
	web.GET("/lark/approval/fields", configHandler.ApprovalFields)

	lk := r.Group("/api/v1/lark")
	lk.POST("/callback", larkHandler.Callback)
	lk.POST("/check/callback", larkHandler.CheckCallback)
	lk.POST("/execute/callback", larkHandler.ExecuteCallback)
	lk.GET("/field/:approval_code/:field_code", larkHandler.ExternalField)
	lk.POST("/field/:approval_code/:field_code", larkHandler.ExternalField)

	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatal(err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) queued() []*services.LarkTask {
	e.queue.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*services.LarkTask(nil), e.tasks...)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid envelope %q: %v", w.Body.String(), err)
	}
	return resp
}

func configBody(code string) map[string]interface{} {
	return map[string]interface{}{
		"approval_code": code,
		"name":          "Expense",
		"check":         map[string]interface{}{"is_open": true, "call_type": "sync", "url": "https://check.example.com"},
		"execute":       map[string]interface{}{"is_open": false, "call_type": "sync", "url": ""},
		"field":         map[string]interface{}{"is_open": false, "data": []interface{}{}},
		"relation":      map[string]interface{}{"is_open": false, "data": []interface{}{}},
	}
}
