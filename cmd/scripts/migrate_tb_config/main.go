package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/models"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// legacyConfig is a row of the previous deployment's configuration table.
type legacyConfig struct {
	ID             uint                                       `gorm:"primaryKey"`
	ApprovalCode   string                                     `gorm:"column:approval_code"`
	Name           string                                     `gorm:"column:name"`
	Check          datatypes.JSONType[approval.Callback]      `gorm:"column:check"`
	Execute        datatypes.JSONType[approval.Callback]      `gorm:"column:execute"`
	Field          datatypes.JSONType[approval.FieldGroup]    `gorm:"column:field"`
	Relation       datatypes.JSONType[approval.RelationGroup] `gorm:"column:relation"`
	CreateTime     time.Time                                  `gorm:"column:create_time"`
	LastUpdateTime time.Time                                  `gorm:"column:last_update_time"`
}

func (legacyConfig) TableName() string {
	return "tb_config"
}

func (l legacyConfig) toConfig() approval.Config {
	return approval.Config{
		ApprovalCode: l.ApprovalCode,
		Name:         l.Name,
		Check:        l.Check.Data(),
		Execute:      l.Execute.Data(),
		Field:        l.Field.Data(),
		Relation:     l.Relation.Data(),
	}.Normalize()
}

type report struct {
	created, updated, skipped, invalid int
}

func main() {
	sourceDriver := flag.String("source-driver", "mysql", "driver of the legacy database")
	sourceDSN := flag.String("source-dsn", os.Getenv("LEGACY_DB_DSN"), "DSN of the legacy database")
	overwrite := flag.Bool("overwrite", false, "replace configurations that already exist in the target")
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	flag.Parse()

	logger.Init("info")

	if *sourceDSN == "" {
		logger.Fatalf("source DSN is required (-source-dsn or LEGACY_DB_DSN)")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	source, err := models.Open(&config.DatabaseConfig{Driver: *sourceDriver, DSN: *sourceDSN})
	if err != nil {
		logger.Fatalf("Failed to connect to legacy database: %v", err)
	}
	target, err := models.Open(&cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to target database: %v", err)
	}
	if err := models.AutoMigrate(target); err != nil {
		logger.Fatalf("Failed to migrate target database: %v", err)
	}

	fmt.Println("Connected to both databases successfully!")
	fmt.Println("")

	var rows []legacyConfig
	if err := source.Order("id").Find(&rows).Error; err != nil {
		logger.Fatalf("Failed to query %s: %v", legacyConfig{}.TableName(), err)
	}
	fmt.Printf("Legacy configurations found: %d\n", len(rows))
	fmt.Println("")

	fmt.Printf("%-8s %-40s %-30s\n", "Action", "ApprovalCode", "Name")
	fmt.Println("------------------------------------------------------------------------------")

	var r report
	for _, row := range rows {
		action, err := importRow(target, row.toConfig(), *overwrite, *dryRun)
		if err != nil {
			logger.Error().Err(err).Str("approval_code", row.ApprovalCode).Msg("import failed")
			action = "error"
		}
		switch action {
		case "create":
			r.created++
		case "update":
			r.updated++
		case "skip":
			r.skipped++
		default:
			r.invalid++
		}
		fmt.Printf("%-8s %-40s %-30s\n", action, row.ApprovalCode, row.Name)
	}

	fmt.Println("")
	if *dryRun {
		fmt.Println("Dry run, nothing was written.")
	}
	fmt.Printf("✅ created %d, updated %d, skipped %d, invalid %d\n", r.created, r.updated, r.skipped, r.invalid)
}

// importRow writes one configuration and returns the action taken.
func importRow(db *gorm.DB, cfg approval.Config, overwrite, dryRun bool) (string, error) {
	if errs := approval.Validate(cfg); len(errs) > 0 {
		return "invalid", errs
	}

	var existing models.ApprovalConfig
	err := db.Where("approval_code = ?", cfg.ApprovalCode).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if dryRun {
			return "create", nil
		}
		return "create", db.Create(models.NewApprovalConfig(cfg)).Error
	case err != nil:
		return "", err
	case !overwrite:
		return "skip", nil
	}

	if dryRun {
		return "update", nil
	}
	existing.Apply(cfg)
	return "update", db.Save(&existing).Error
}
