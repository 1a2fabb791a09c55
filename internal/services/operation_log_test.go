package services

import (
	"context"
	"testing"
	"time"

	"github.com/huangang/larkticket/internal/models"
)

func seedOperations(t *testing.T, svc *OperationLogService, base time.Time) {
	t.Helper()
	entries := []models.OperationLog{
		{Operator: "alice", Action: "POST /api/v1/web/config", ApprovalCode: "A1", Status: 200, CreatedAt: base.AddDate(0, 0, -40)},
		{Operator: "alice", Action: "PUT /api/v1/web/config", ApprovalCode: "A1", Status: 200, CreatedAt: base.AddDate(0, 0, -2)},
		{Operator: "bob", Action: "DELETE /api/v1/web/config/:approval_code", ApprovalCode: "B1", Status: 200, CreatedAt: base.AddDate(0, 0, -1)},
	}
	for i := range entries {
		if err := svc.Record(context.Background(), &entries[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
}

func TestOperationLogService_RecordSetsTime(t *testing.T) {
	svc := NewOperationLogService(newTestDB(t), nil, 30)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return fixed }

	entry := &models.OperationLog{Operator: "alice", Action: "POST /api/v1/web/config"}
	if err := svc.Record(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	if entry.ID == 0 || !entry.CreatedAt.Equal(fixed) {
		t.Errorf("entry = %+v", entry)
	}
}

func TestOperationLogService_List(t *testing.T) {
	svc := NewOperationLogService(newTestDB(t), nil, 30)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	seedOperations(t, svc, base)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   OperationLogListRequest
		total int64
		first string
	}{
		{name: "all newest first", req: OperationLogListRequest{}, total: 3, first: "DELETE /api/v1/web/config/:approval_code"},
		{name: "by operator", req: OperationLogListRequest{Operator: "alice"}, total: 2, first: "PUT /api/v1/web/config"},
		{name: "by code", req: OperationLogListRequest{ApprovalCode: "B1"}, total: 1, first: "DELETE /api/v1/web/config/:approval_code"},
		{name: "by action", req: OperationLogListRequest{Action: "POST /api/v1/web/config"}, total: 1, first: "POST /api/v1/web/config"},
		{name: "date range", req: OperationLogListRequest{StartDate: "2026-03-08", EndDate: "2026-03-08"}, total: 1, first: "PUT /api/v1/web/config"},
		{name: "page size", req: OperationLogListRequest{PageSize: 1, Page: 2}, total: 3, first: "PUT /api/v1/web/config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			resp, err := svc.List(ctx, &req)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if resp.Total != tt.total {
				t.Errorf("Total = %d, expected %d", resp.Total, tt.total)
			}
			if len(resp.Items) == 0 || resp.Items[0].Action != tt.first {
				t.Errorf("Items = %+v, expected first action %q", resp.Items, tt.first)
			}
		})
	}

	if _, err := svc.List(ctx, &OperationLogListRequest{StartDate: "yesterday"}); err == nil {
		t.Error("expected error for malformed start_date")
	}
}

func TestOperationLogService_ListDefaults(t *testing.T) {
	svc := NewOperationLogService(newTestDB(t), nil, 30)

	resp, err := svc.List(context.Background(), &OperationLogListRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Page != 1 || resp.PageSize != 20 {
		t.Errorf("page = %d, page_size = %d", resp.Page, resp.PageSize)
	}
	if resp.Items == nil {
		t.Error("Items should be an empty slice")
	}
}

func TestOperationLogService_CleanupOldLogs(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	svc := NewOperationLogService(db, NewSchedulerLocker(db), 30)
	svc.now = func() time.Time { return base }
	seedOperations(t, svc, base)

	deleted, err := svc.CleanupOldLogs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, expected 1", deleted)
	}

	disabled := NewOperationLogService(db, nil, 0)
	if n, err := disabled.CleanupOldLogs(context.Background()); n != 0 || err != nil {
		t.Errorf("disabled cleanup = %d, %v", n, err)
	}
}

func TestOperationLogService_RunCleanupOncePerDay(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	first := NewOperationLogService(db, NewSchedulerLocker(db), 30)
	first.now = func() time.Time { return base }
	seedOperations(t, first, base)
	first.runCleanup()

	second := NewOperationLogService(db, NewSchedulerLocker(db), 1)
	second.now = func() time.Time { return base }
	second.runCleanup()

	resp, err := first.List(context.Background(), &OperationLogListRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Errorf("Total = %d, expected the second instance to skip the locked day", resp.Total)
	}
}
