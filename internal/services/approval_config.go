package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/internal/models"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/response"
	"gorm.io/gorm"
)

type ApprovalConfigService struct {
	db   *gorm.DB
	lark lark.ApprovalAPI
}

func NewApprovalConfigService(db *gorm.DB, api lark.ApprovalAPI) *ApprovalConfigService {
	return &ApprovalConfigService{db: db, lark: api}
}

func errNotExist(code string) error {
	return response.NewNotFound(fmt.Sprintf("approval_code: %s does not exist!", code))
}

func errAlreadyExists(code string) error {
	return response.NewAlreadyExists(fmt.Sprintf("approval_code: %s already exists!", code))
}

// prepare normalizes cfg and runs the validation rules on it.
func prepare(cfg approval.Config) (approval.Config, error) {
	cfg.ApprovalCode = strings.TrimSpace(cfg.ApprovalCode)
	cfg = cfg.Normalize()
	if errs := approval.Validate(cfg); len(errs) > 0 {
		return cfg, response.NewValidation(errs.Error())
	}
	return cfg, nil
}

// List returns every configuration summary in creation order.
func (s *ApprovalConfigService) List(ctx context.Context) ([]approval.Summary, error) {
	var rows []models.ApprovalConfig
	if err := s.db.WithContext(ctx).
		Select("approval_code", "name").
		Order("created_at, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]approval.Summary, 0, len(rows))
	for _, r := range rows {
		items = append(items, approval.Summary{ApprovalCode: r.ApprovalCode, Name: r.Name})
	}
	return items, nil
}

// All returns every stored configuration.
func (s *ApprovalConfigService) All(ctx context.Context) ([]approval.Config, error) {
	var rows []models.ApprovalConfig
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]approval.Config, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToConfig())
	}
	return out, nil
}

func (s *ApprovalConfigService) Exists(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.ApprovalConfig{}).
		Where("approval_code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *ApprovalConfigService) Get(ctx context.Context, code string) (*approval.Config, error) {
	row, err := s.find(s.db.WithContext(ctx), code)
	if err != nil {
		return nil, err
	}
	cfg := row.ToConfig()
	return &cfg, nil
}

func (s *ApprovalConfigService) find(tx *gorm.DB, code string) (*models.ApprovalConfig, error) {
	var row models.ApprovalConfig
	if err := tx.Where("approval_code = ?", code).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotExist(code)
		}
		return nil, err
	}
	return &row, nil
}

// Create stores a new configuration and subscribes its approval events at
// Lark. The row is rolled back when the subscription fails.
func (s *ApprovalConfigService) Create(ctx context.Context, cfg approval.Config) error {
	cfg, err := prepare(cfg)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ApprovalConfig{}).
			Where("approval_code = ?", cfg.ApprovalCode).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errAlreadyExists(cfg.ApprovalCode)
		}

		if err := tx.Create(models.NewApprovalConfig(cfg)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyExists(cfg.ApprovalCode)
			}
			return err
		}

		if err := s.lark.Subscribe(ctx, cfg.ApprovalCode); err != nil {
			return fmt.Errorf("subscribe approval %s: %w", cfg.ApprovalCode, err)
		}
		return nil
	})
}

// Update replaces every mutable section of an existing configuration.
func (s *ApprovalConfigService) Update(ctx context.Context, cfg approval.Config) error {
	cfg, err := prepare(cfg)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.find(tx, cfg.ApprovalCode)
		if err != nil {
			return err
		}
		row.Apply(cfg)
		return tx.Save(row).Error
	})
}

// Delete removes a configuration and unsubscribes its approval events.
func (s *ApprovalConfigService) Delete(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.find(tx, code)
		if err != nil {
			return err
		}

		result := tx.Delete(row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errNotExist(code)
		}

		if err := s.lark.Unsubscribe(ctx, code); err != nil {
			return fmt.Errorf("unsubscribe approval %s: %w", code, err)
		}
		return nil
	})
}

// ApprovalFields lists the form controls of an approval definition.
func (s *ApprovalConfigService) ApprovalFields(ctx context.Context, code string) ([]approval.FieldOption, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, response.NewValidation("approval_code is required")
	}

	def, err := s.lark.GetApproval(ctx, code)
	if err != nil {
		return nil, err
	}

	components, err := lark.ParseForm(def.Form)
	if err != nil {
		return nil, err
	}

	options := make([]approval.FieldOption, 0, len(components))
	for _, c := range components {
		options = append(options, approval.FieldOption{Label: c.Name(), Value: c.ID()})
	}
	return options, nil
}

// FieldURL returns the external data source bound to a form control.
func (s *ApprovalConfigService) FieldURL(ctx context.Context, approvalCode, fieldCode string) (string, error) {
	cfg, err := s.Get(ctx, approvalCode)
	if err != nil {
		return "", err
	}
	for _, f := range cfg.Field.Data {
		if f.Code == fieldCode {
			return f.URL, nil
		}
	}
	return "", response.NewNotFound(fmt.Sprintf("field_code: %s does not exist!", fieldCode))
}
