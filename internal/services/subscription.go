package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/pkg/logger"
	"github.com/robfig/cron/v3"
)

const subscriptionLockName = "subscription_reconcile"

// SubscriptionService periodically re-subscribes every configured approval
// so events keep flowing after a subscription was dropped on the Lark side.
type SubscriptionService struct {
	configs       *ApprovalConfigService
	lark          lark.ApprovalAPI
	locker        *SchedulerLocker
	cronSpec      string
	cronScheduler *cron.Cron
}

func NewSubscriptionService(configs *ApprovalConfigService, api lark.ApprovalAPI, locker *SchedulerLocker, cronSpec string) *SubscriptionService {
	return &SubscriptionService{
		configs:  configs,
		lark:     api,
		locker:   locker,
		cronSpec: cronSpec,
	}
}

// Reconcile subscribes every stored approval code and returns how many succeeded.
func (s *SubscriptionService) Reconcile(ctx context.Context) (int, error) {
	configs, err := s.configs.All(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	ok := 0
	for _, cfg := range configs {
		if err := s.lark.Subscribe(ctx, cfg.ApprovalCode); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.ApprovalCode, err))
			continue
		}
		ok++
	}
	return ok, errors.Join(errs...)
}

// runLocked reconciles once per minute window across all instances.
func (s *SubscriptionService) runLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	key := time.Now().UTC().Truncate(time.Minute).Format(time.RFC3339)
	acquired, err := s.locker.TryLock(ctx, subscriptionLockName, key, 10*time.Minute)
	if err != nil {
		logger.Error().Err(err).Msg("[Subscription] failed to acquire scheduler lock")
		return
	}
	if !acquired {
		logger.Debug().Str("key", key).Msg("[Subscription] another instance holds the lock")
		return
	}

	n, err := s.Reconcile(ctx)
	if err != nil {
		logger.Warn().Err(err).Int("subscribed", n).Msg("[Subscription] reconcile finished with errors")
		return
	}
	logger.Info().Int("subscribed", n).Msg("[Subscription] reconcile finished")
}

// StartScheduler registers the reconcile job. An empty cron expression disables it.
func (s *SubscriptionService) StartScheduler() error {
	if s.cronSpec == "" {
		return nil
	}

	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(s.cronSpec, s.runLocked); err != nil {
		return fmt.Errorf("invalid resubscribe cron %q: %w", s.cronSpec, err)
	}
	s.cronScheduler.Start()
	logger.Infof("[Subscription] Scheduler started (cron: %s)", s.cronSpec)
	return nil
}

func (s *SubscriptionService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}
