package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/response"
)

const assistant = "u-assistant"

type callbackFixture struct {
	svc     *CallbackService
	configs *ApprovalConfigService
	lark    *fakeLark
}

func newCallbackFixture(t *testing.T) *callbackFixture {
	t.Helper()
	fl := newFakeLark()
	configs := NewApprovalConfigService(newTestDB(t), fl)
	cfg := &config.LarkConfig{AssistantUserID: assistant, CallbackTimeoutSeconds: 2}
	return &callbackFixture{
		svc:     NewCallbackService(configs, fl, cfg),
		configs: configs,
		lark:    fl,
	}
}

func (f *callbackFixture) addInstance(node, status string) {
	f.lark.instances["I1"] = &lark.ApprovalInstance{
		ApprovalCode: "A1",
		InstanceCode: "I1",
		Form:         `[{"id":"widget1","name":"Amount","value":"42"},{"id":"widget2","name":"Reason","value":"travel"}]`,
		Tasks: []lark.InstanceTask{
			{ID: "T0", NodeName: "start", Status: "APPROVED"},
			{ID: "T1", NodeName: node, Status: status},
		},
	}
}

func pendingEvent() lark.ApprovalEvent {
	return lark.ApprovalEvent{
		Type:         lark.TypeApprovalTask,
		ApprovalCode: "A1",
		InstanceCode: "I1",
		TaskID:       "T1",
		UserID:       assistant,
		Status:       lark.StatusPending,
	}
}

// recorder is an external check/execute endpoint.
type recorder struct {
	mu     sync.Mutex
	bodies []map[string]interface{}
}

func (r *recorder) server(t *testing.T, status int, reply string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, _ := io.ReadAll(req.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(data, &body)
		r.mu.Lock()
		r.bodies = append(r.bodies, body)
		r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleApprovalTask_IgnoresOtherUsers(t *testing.T) {
	f := newCallbackFixture(t)

	ev := pendingEvent()
	ev.UserID = "someone-else"
	if err := f.svc.HandleApprovalTask(context.Background(), ev); err != nil {
		t.Fatalf("HandleApprovalTask() error = %v", err)
	}

	ev = pendingEvent()
	ev.Status = "APPROVED"
	if err := f.svc.HandleApprovalTask(context.Background(), ev); err != nil {
		t.Fatalf("HandleApprovalTask() error = %v", err)
	}

	if len(f.lark.approved)+len(f.lark.rejected) != 0 {
		t.Error("events not addressed to the assistant must be ignored")
	}
}

func TestHandleApprovalTask_ClosedCheckApproves(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	cfg := sampleConfig("A1")
	cfg.Check.IsOpen = false
	if err := f.configs.Create(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	f.addInstance(lark.NodeCheck, lark.StatusPending)

	if err := f.svc.HandleApprovalTask(ctx, pendingEvent()); err != nil {
		t.Fatalf("HandleApprovalTask() error = %v", err)
	}

	if len(f.lark.approved) != 1 {
		t.Fatalf("expected 1 approval, got %d", len(f.lark.approved))
	}
	got := f.lark.approved[0]
	want := lark.TaskAction{ApprovalCode: "A1", InstanceCode: "I1", TaskID: "T1", UserID: assistant, Comment: CheckSuccessComment}
	if got != want {
		t.Errorf("approved = %+v, expected %+v", got, want)
	}
}

func TestHandleApprovalTask_ClosedExecuteUsesExecuteComment(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	if err := f.configs.Create(ctx, sampleConfig("A1")); err != nil {
		t.Fatal(err)
	}
	f.addInstance(lark.NodeExecute, lark.StatusPending)

	if err := f.svc.HandleApprovalTask(ctx, pendingEvent()); err != nil {
		t.Fatal(err)
	}
	if len(f.lark.approved) != 1 || f.lark.approved[0].Comment != ExecuteSuccessComment {
		t.Errorf("approved = %+v", f.lark.approved)
	}
}

func TestHandleApprovalTask_SyncCheckRejects(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	rec := &recorder{}
	srv := rec.server(t, http.StatusOK, `{"ticket_id":"","result":false,"msg":"","error":"budget exceeded"}`)

	cfg := sampleConfig("A1")
	cfg.Check.URL = srv.URL
	cfg.Relation = approval.RelationGroup{IsOpen: true, Data: []approval.RelationMapping{{Code: "widget1", APIKey: "amount"}}}
	if err := f.configs.Create(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	f.addInstance(lark.NodeCheck, lark.StatusPending)

	if err := f.svc.HandleApprovalTask(ctx, pendingEvent()); err != nil {
		t.Fatalf("HandleApprovalTask() error = %v", err)
	}

	if len(rec.bodies) != 1 {
		t.Fatalf("expected 1 callback, got %d", len(rec.bodies))
	}
	body := rec.bodies[0]
	if body["ticket_id"] != "A1|I1|T1" {
		t.Errorf("ticket_id = %v", body["ticket_id"])
	}
	amount, ok := body["amount"].(map[string]interface{})
	if !ok || amount["value"] != "42" {
		t.Errorf("amount = %v, expected the widget1 component", body["amount"])
	}
	if _, ok := body["widget2"]; ok {
		t.Error("unrelated components must not be forwarded")
	}

	if len(f.lark.rejected) != 1 || f.lark.rejected[0].Comment != "budget exceeded" {
		t.Errorf("rejected = %+v", f.lark.rejected)
	}
}

func TestHandleApprovalTask_AsyncOnlyPosts(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	rec := &recorder{}
	srv := rec.server(t, http.StatusOK, `{}`)

	cfg := sampleConfig("A1")
	cfg.Check = approval.Callback{IsOpen: true, CallType: approval.CallTypeAsync, URL: srv.URL}
	if err := f.configs.Create(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	f.addInstance(lark.NodeCheck, lark.StatusPending)

	if err := f.svc.HandleApprovalTask(ctx, pendingEvent()); err != nil {
		t.Fatal(err)
	}
	if len(rec.bodies) != 1 {
		t.Errorf("expected 1 callback, got %d", len(rec.bodies))
	}
	if len(f.lark.approved)+len(f.lark.rejected) != 0 {
		t.Error("async callbacks must wait for the external result")
	}
}

func TestHandleApprovalTask_SyncCallbackFailure(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	rec := &recorder{}
	srv := rec.server(t, http.StatusInternalServerError, `oops`)

	cfg := sampleConfig("A1")
	cfg.Check.URL = srv.URL
	if err := f.configs.Create(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	f.addInstance(lark.NodeCheck, lark.StatusPending)

	if err := f.svc.HandleApprovalTask(ctx, pendingEvent()); err == nil {
		t.Error("expected error for non-200 callback reply")
	}
	if len(f.lark.approved)+len(f.lark.rejected) != 0 {
		t.Error("failed callbacks must not resolve the task")
	}
}

func TestHandleApprovalTask_OtherNodeIgnored(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	if err := f.configs.Create(ctx, sampleConfig("A1")); err != nil {
		t.Fatal(err)
	}
	f.addInstance("manager_node", lark.StatusPending)

	if err := f.svc.HandleApprovalTask(ctx, pendingEvent()); err != nil {
		t.Fatal(err)
	}
	if len(f.lark.approved)+len(f.lark.rejected) != 0 {
		t.Error("tasks on other nodes must be left alone")
	}
}

func TestApplyResult(t *testing.T) {
	tests := []struct {
		name     string
		node     string
		result   approval.TaskResult
		approved bool
		comment  string
	}{
		{"check success default", lark.NodeCheck, approval.TaskResult{TicketID: "A|I|T", Result: true}, true, CheckSuccessComment},
		{"check failure default", lark.NodeCheck, approval.TaskResult{TicketID: "A|I|T"}, false, CheckFailureComment},
		{"execute success default", lark.NodeExecute, approval.TaskResult{TicketID: "A|I|T", Result: true}, true, ExecuteSuccessComment},
		{"execute failure default", lark.NodeExecute, approval.TaskResult{TicketID: "A|I|T"}, false, ExecuteFailureComment},
		{"custom msg", lark.NodeCheck, approval.TaskResult{TicketID: "A|I|T", Result: true, Msg: "ok by bot"}, true, "ok by bot"},
		{"custom error", lark.NodeExecute, approval.TaskResult{TicketID: "A|I|T", Error: "deploy failed"}, false, "deploy failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCallbackFixture(t)
			if err := f.svc.ApplyResult(context.Background(), tt.node, tt.result); err != nil {
				t.Fatalf("ApplyResult() error = %v", err)
			}

			actions := f.lark.rejected
			if tt.approved {
				actions = f.lark.approved
			}
			if len(actions) != 1 {
				t.Fatalf("expected 1 action, got approved=%d rejected=%d", len(f.lark.approved), len(f.lark.rejected))
			}
			if actions[0].Comment != tt.comment {
				t.Errorf("comment = %q, expected %q", actions[0].Comment, tt.comment)
			}
			if actions[0].UserID != assistant {
				t.Errorf("user = %q, expected assistant", actions[0].UserID)
			}
		})
	}
}

func TestApplyResult_InvalidTicket(t *testing.T) {
	f := newCallbackFixture(t)
	if err := f.svc.ApplyResult(context.Background(), lark.NodeCheck, approval.TaskResult{TicketID: "bad"}); err == nil {
		t.Error("expected error for malformed ticket id")
	}
}

func TestExternalField(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	rec := &recorder{}
	srv := rec.server(t, http.StatusOK, `{"code":0,"data":{"result":{"options":[{"id":"1","value":"Beijing"}]}}}`)

	cfg := sampleConfig("A1")
	cfg.Field.Data = []approval.FieldMapping{{Code: "widget1", URL: srv.URL}}
	if err := f.configs.Create(ctx, cfg); err != nil {
		t.Fatal(err)
	}

	raw, err := f.svc.ExternalField(ctx, "A1", "widget1", ExternalFieldRequest{Query: "Bei"})
	if err != nil {
		t.Fatalf("ExternalField() error = %v", err)
	}
	if !json.Valid(raw) {
		t.Errorf("invalid json: %s", raw)
	}
	if rec.bodies[0]["query"] != "Bei" {
		t.Errorf("forwarded body = %v", rec.bodies[0])
	}
	if _, ok := rec.bodies[0]["linkage_params"].(map[string]interface{}); !ok {
		t.Error("linkage_params should default to an object")
	}

	if _, err := f.svc.ExternalField(ctx, "A1", "unknown", ExternalFieldRequest{}); retcodeOf(err) != response.RetcodeNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestProcessTask_Dispatch(t *testing.T) {
	f := newCallbackFixture(t)
	ctx := context.Background()

	result := approval.TaskResult{TicketID: "A|I|T", Result: true}
	if err := f.svc.ProcessTask(ctx, NewTaskResultTask(lark.NodeExecute, result)); err != nil {
		t.Fatalf("ProcessTask() error = %v", err)
	}
	if len(f.lark.approved) != 1 {
		t.Errorf("expected approval, got %+v", f.lark.approved)
	}

	if err := f.svc.ProcessTask(ctx, &LarkTask{Type: TaskTypeTaskResult}); err == nil {
		t.Error("expected error for task without result")
	}
	if err := f.svc.ProcessTask(ctx, &LarkTask{Type: "unknown"}); err != nil {
		t.Errorf("unknown task types are dropped, got %v", err)
	}
}
