package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huangang/larkticket/internal/models"
)

func TestSchedulerLocker_TryLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := NewSchedulerLocker(db)
	second := NewSchedulerLocker(db)
	if first.Owner() == second.Owner() {
		t.Fatal("owners must be unique per locker")
	}

	ok, err := first.TryLock(ctx, "job", "k1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first TryLock() = %v, %v", ok, err)
	}

	ok, err = second.TryLock(ctx, "job", "k1", time.Minute)
	if err != nil {
		t.Fatalf("second TryLock() error = %v", err)
	}
	if ok {
		t.Error("second instance must not acquire a held lock")
	}

	ok, err = second.TryLock(ctx, "job", "k2", time.Minute)
	if err != nil || !ok {
		t.Errorf("different key should be free, got %v, %v", ok, err)
	}
}

func TestSchedulerLocker_ExpiredLockIsReclaimed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := NewSchedulerLocker(db)
	if ok, err := first.TryLock(ctx, "job", "k", time.Minute); err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}

	second := NewSchedulerLocker(db)
	second.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	ok, err := second.TryLock(ctx, "job", "k", time.Minute)
	if err != nil || !ok {
		t.Errorf("expired lock should be reclaimed, got %v, %v", ok, err)
	}
}

func TestSchedulerLocker_ExpiredWindowsAreCleared(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewSchedulerLocker(db)
	for i := 0; i < 50; i++ {
		at := start.Add(time.Duration(i) * time.Hour)
		l.now = func() time.Time { return at }
		ok, err := l.TryLock(ctx, "job", at.Format(time.RFC3339), 10*time.Minute)
		if err != nil || !ok {
			t.Fatalf("run %d: TryLock() = %v, %v", i, ok, err)
		}
	}

	var count int64
	if err := db.Model(&models.SchedulerLock{}).Where("lock_name = ?", "job").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("lock rows after 50 hourly runs = %d, expected 1", count)
	}

	other := NewSchedulerLocker(db)
	other.now = func() time.Time { return start.Add(49 * time.Hour) }
	if ok, _ := other.TryLock(ctx, "other", "k", time.Minute); !ok {
		t.Fatal("expected lock on a different name")
	}
	if err := db.Model(&models.SchedulerLock{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("live locks of other names must survive, got %d rows", count)
	}
}

func TestSchedulerLocker_Release(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	l := NewSchedulerLocker(db)
	if ok, _ := l.TryLock(ctx, "job", "k", time.Hour); !ok {
		t.Fatal("expected lock")
	}
	if err := l.Release(ctx, "job", "k"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if ok, _ := NewSchedulerLocker(db).TryLock(ctx, "job", "k", time.Hour); !ok {
		t.Error("released lock should be acquirable")
	}
}

func TestSubscriptionService_Reconcile(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLark()
	configs := NewApprovalConfigService(db, fl)
	ctx := context.Background()

	for _, code := range []string{"A1", "A2"} {
		if err := configs.Create(ctx, sampleConfig(code)); err != nil {
			t.Fatal(err)
		}
	}
	fl.subscribed = nil

	svc := NewSubscriptionService(configs, fl, NewSchedulerLocker(db), "")
	n, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if n != 2 || len(fl.subscribed) != 2 {
		t.Errorf("subscribed %d (%v), expected 2", n, fl.subscribed)
	}

	fl.subscribeErr = errors.New("rate limited")
	n, err = svc.Reconcile(ctx)
	if err == nil || n != 0 {
		t.Errorf("Reconcile() = %d, %v, expected joined errors", n, err)
	}
}

func TestSubscriptionService_StartScheduler(t *testing.T) {
	db := newTestDB(t)
	configs := NewApprovalConfigService(db, newFakeLark())

	disabled := NewSubscriptionService(configs, newFakeLark(), NewSchedulerLocker(db), "")
	if err := disabled.StartScheduler(); err != nil {
		t.Errorf("empty cron expression should disable the job, got %v", err)
	}
	disabled.StopScheduler()

	invalid := NewSubscriptionService(configs, newFakeLark(), NewSchedulerLocker(db), "not a cron")
	if err := invalid.StartScheduler(); err == nil {
		t.Error("expected error for invalid cron spec")
	}

	valid := NewSubscriptionService(configs, newFakeLark(), NewSchedulerLocker(db), "@every 1h")
	if err := valid.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler() error = %v", err)
	}
	valid.StopScheduler()
}
