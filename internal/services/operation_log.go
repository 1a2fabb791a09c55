package services

import (
	"context"
	"fmt"
	"time"

	"github.com/huangang/larkticket/internal/models"
	"github.com/huangang/larkticket/pkg/logger"
	"github.com/huangang/larkticket/pkg/response"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const operationCleanupLockName = "operation_log_cleanup"

// OperationLogService stores and queries the audit trail of configuration
// writes.
type OperationLogService struct {
	db            *gorm.DB
	locker        *SchedulerLocker
	retentionDays int
	now           func() time.Time
	cronScheduler *cron.Cron
}

func NewOperationLogService(db *gorm.DB, locker *SchedulerLocker, retentionDays int) *OperationLogService {
	return &OperationLogService{
		db:            db,
		locker:        locker,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Record stores one entry. It satisfies middleware.OperationRecorder.
func (s *OperationLogService) Record(ctx context.Context, entry *models.OperationLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

type OperationLogListRequest struct {
	Page         int    `form:"page" binding:"omitempty,min=1"`
	PageSize     int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Operator     string `form:"operator"`
	Action       string `form:"action"`
	ApprovalCode string `form:"approval_code"`
	StartDate    string `form:"start_date"`
	EndDate      string `form:"end_date"`
}

type OperationLogListResponse struct {
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Items    []models.OperationLog `json:"items"`
}

// List returns entries newest first. Dates are YYYY-MM-DD and inclusive.
func (s *OperationLogService) List(ctx context.Context, req *OperationLogListRequest) (*OperationLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.OperationLog{})
	if req.Operator != "" {
		query = query.Where("operator = ?", req.Operator)
	}
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}
	if req.ApprovalCode != "" {
		query = query.Where("approval_code = ?", req.ApprovalCode)
	}
	if req.StartDate != "" {
		start, err := time.ParseInLocation(time.DateOnly, req.StartDate, time.Local)
		if err != nil {
			return nil, response.NewValidation(fmt.Sprintf("invalid start_date: %s", req.StartDate))
		}
		query = query.Where("created_at >= ?", start)
	}
	if req.EndDate != "" {
		end, err := time.ParseInLocation(time.DateOnly, req.EndDate, time.Local)
		if err != nil {
			return nil, response.NewValidation(fmt.Sprintf("invalid end_date: %s", req.EndDate))
		}
		query = query.Where("created_at < ?", end.AddDate(0, 0, 1))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	items := []models.OperationLog{}
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}

	return &OperationLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// CleanupOldLogs deletes entries older than the retention window and returns
// how many were removed.
func (s *OperationLogService) CleanupOldLogs(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.OperationLog{})
	return result.RowsAffected, result.Error
}

func (s *OperationLogService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	key := s.now().UTC().Format(time.DateOnly)
	acquired, err := s.locker.TryLock(ctx, operationCleanupLockName, key, 24*time.Hour)
	if err != nil {
		logger.Error().Err(err).Msg("[OperationLog] failed to acquire scheduler lock")
		return
	}
	if !acquired {
		return
	}

	deleted, err := s.CleanupOldLogs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("[OperationLog] cleanup failed")
		return
	}
	if deleted > 0 {
		logger.Infof("[OperationLog] Cleaned up %d logs older than %d days", deleted, s.retentionDays)
	}
}

// StartCleanupScheduler prunes old entries daily. It is a no-op when
// retention is disabled.
func (s *OperationLogService) StartCleanupScheduler() {
	if s.retentionDays <= 0 {
		logger.Info().Msg("[OperationLog] cleanup disabled (retention <= 0)")
		return
	}
	s.cronScheduler = cron.New()
	s.cronScheduler.AddFunc("@daily", s.runCleanup)
	s.cronScheduler.Start()
	go s.runCleanup()
}

func (s *OperationLogService) StopCleanupScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}
