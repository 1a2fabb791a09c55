package models

import (
	"time"

	"github.com/huangang/larkticket/pkg/approval"
	"gorm.io/datatypes"
)

// ApprovalConfig is the stored configuration of one Lark approval definition.
type ApprovalConfig struct {
	ID           uint                                       `gorm:"primaryKey" json:"id"`
	ApprovalCode string                                     `gorm:"uniqueIndex;size:255;not null" json:"approval_code"`
	Name         string                                     `gorm:"size:255;not null" json:"name"`
	Check        datatypes.JSONType[approval.Callback]      `gorm:"column:check_config" json:"check"`
	Execute      datatypes.JSONType[approval.Callback]      `gorm:"column:execute_config" json:"execute"`
	Field        datatypes.JSONType[approval.FieldGroup]    `gorm:"column:field_config" json:"field"`
	Relation     datatypes.JSONType[approval.RelationGroup] `gorm:"column:relation_config" json:"relation"`
	CreatedAt    time.Time                                  `json:"created_at"`
	UpdatedAt    time.Time                                  `json:"updated_at"`
}

func (ApprovalConfig) TableName() string { return "approval_configs" }

// NewApprovalConfig builds a row from the wire representation.
func NewApprovalConfig(c approval.Config) *ApprovalConfig {
	m := &ApprovalConfig{ApprovalCode: c.ApprovalCode}
	m.Apply(c)
	return m
}

// Apply replaces every mutable column with the values of c.
func (m *ApprovalConfig) Apply(c approval.Config) {
	m.Name = c.Name
	m.Check = datatypes.NewJSONType(c.Check)
	m.Execute = datatypes.NewJSONType(c.Execute)
	m.Field = datatypes.NewJSONType(c.Field)
	m.Relation = datatypes.NewJSONType(c.Relation)
}

// ToConfig returns the wire representation, normalized.
func (m *ApprovalConfig) ToConfig() approval.Config {
	return approval.Config{
		ApprovalCode: m.ApprovalCode,
		Name:         m.Name,
		Check:        m.Check.Data(),
		Execute:      m.Execute.Data(),
		Field:        m.Field.Data(),
		Relation:     m.Relation.Data(),
	}.Normalize()
}
