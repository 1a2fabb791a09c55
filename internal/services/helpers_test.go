package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/internal/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
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
	return db
}

// fakeLark records every call made through lark.ApprovalAPI.
type fakeLark struct {
	mu           sync.Mutex
	approvals    map[string]*lark.ApprovalDefinition
	instances    map[string]*lark.ApprovalInstance
	subscribeErr error
	subscribed   []string
	unsubscribed []string
	approved     []lark.TaskAction
	rejected     []lark.TaskAction
}

func newFakeLark() *fakeLark {
	return &fakeLark{
		approvals: map[string]*lark.ApprovalDefinition{},
		instances: map[string]*lark.ApprovalInstance{},
	}
}

func (f *fakeLark) GetApproval(_ context.Context, code string) (*lark.ApprovalDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.approvals[code]
	if !ok {
		return nil, &lark.APIError{Op: "get approval", Code: 1390001, Msg: "approval not found"}
	}
	return def, nil
}

func (f *fakeLark) GetInstance(_ context.Context, code string) (*lark.ApprovalInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[code]
	if !ok {
		return nil, &lark.APIError{Op: "get instance", Code: 1390001, Msg: "instance not found"}
	}
	return inst, nil
}

func (f *fakeLark) ApproveTask(_ context.Context, a lark.TaskAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, a)
	return nil
}

func (f *fakeLark) RejectTask(_ context.Context, a lark.TaskAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, a)
	return nil
}

func (f *fakeLark) Subscribe(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, code)
	return nil
}

func (f *fakeLark) Unsubscribe(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, code)
	return nil
}
