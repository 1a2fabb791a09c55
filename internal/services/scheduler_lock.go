package services

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/larkticket/internal/models"
	"gorm.io/gorm"
)

// SchedulerLocker elects one instance per (name, key) window through the
// unique index on scheduler_locks.
type SchedulerLocker struct {
	db    *gorm.DB
	owner string
	now   func() time.Time
}

func NewSchedulerLocker(db *gorm.DB) *SchedulerLocker {
	host, _ := os.Hostname()
	return &SchedulerLocker{
		db:    db,
		owner: host + "-" + uuid.NewString(),
		now:   time.Now,
	}
}

// Owner identifies this process in lock rows.
func (l *SchedulerLocker) Owner() string {
	return l.owner
}

// TryLock returns true when this instance acquired the lock. Expired rows of
// every window for name are cleared first, so per-window keys do not pile up.
func (l *SchedulerLocker) TryLock(ctx context.Context, name, key string, ttl time.Duration) (bool, error) {
	now := l.now()
	db := l.db.WithContext(ctx)

	if err := db.Where("lock_name = ? AND expires_at < ?", name, now).
		Delete(&models.SchedulerLock{}).Error; err != nil {
		return false, err
	}

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  l.owner,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.Create(&lock).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release drops a lock held by this instance.
func (l *SchedulerLocker) Release(ctx context.Context, name, key string) error {
	return l.db.WithContext(ctx).
		Where("lock_name = ? AND lock_key = ? AND locked_by = ?", name, key, l.owner).
		Delete(&models.SchedulerLock{}).Error
}
