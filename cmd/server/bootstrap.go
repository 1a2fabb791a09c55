package main

import (
	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/handlers"
	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/internal/models"
	"github.com/huangang/larkticket/internal/services"
	"github.com/huangang/larkticket/internal/utils"
	"github.com/huangang/larkticket/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg                 *config.Config
	taskQueue           services.TaskQueue
	worker              *services.Worker
	subscriptionService *services.SubscriptionService
	operationLogs       *services.OperationLogService
	configHandler       *handlers.ApprovalConfigHandler
	larkHandler         *handlers.LarkHandler
	healthHandler       *handlers.HealthHandler
	operationLogHandler *handlers.OperationLogHandler
}

// bootstrap initializes all application dependencies: database, Lark client,
// task queue, worker and the subscription scheduler.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.Auth.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	larkClient := lark.NewClient(&cfg.Lark)
	configService := services.NewApprovalConfigService(db, larkClient)
	callbackService := services.NewCallbackService(configService, larkClient, &cfg.Lark)

	// Task queue uses Redis if enabled, otherwise sync mode
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(callbackService.ProcessTask)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(callbackService.ProcessTask)
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start worker: %v", err)
			}
		}
	}

	locker := services.NewSchedulerLocker(db)
	subscriptionService := services.NewSubscriptionService(configService, larkClient, locker, cfg.Lark.ResubscribeCron)
	if err := subscriptionService.StartScheduler(); err != nil {
		logger.Fatalf("Failed to start subscription scheduler: %v", err)
	}

	operationLogs := services.NewOperationLogService(db, locker, cfg.Log.OperationRetentionDays)
	operationLogs.StartCleanupScheduler()

	return &appServices{
		cfg:                 cfg,
		taskQueue:           taskQueue,
		worker:              worker,
		subscriptionService: subscriptionService,
		operationLogs:       operationLogs,
		configHandler:       handlers.NewApprovalConfigHandler(configService),
		larkHandler:         handlers.NewLarkHandler(&cfg.Lark, configService, callbackService, taskQueue),
		healthHandler:       handlers.NewHealthHandler(db, taskQueue),
		operationLogHandler: handlers.NewOperationLogHandler(operationLogs),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.subscriptionService.StopScheduler()
	logger.Info().Msg("Subscription scheduler stopped")
	s.operationLogs.StopCleanupScheduler()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
}
