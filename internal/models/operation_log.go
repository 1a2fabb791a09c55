package models

import "time"

// OperationLog is one configuration write made through the web API.
type OperationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RequestID    string    `gorm:"size:64" json:"request_id"`
	Operator     string    `gorm:"size:100;index" json:"operator"`
	Action       string    `gorm:"size:255;index" json:"action"` // METHOD route, e.g. "DELETE /api/v1/web/config/:approval_code"
	ApprovalCode string    `gorm:"size:255;index" json:"approval_code"`
	Status       int       `json:"status"`
	Retcode      int       `json:"retcode"`
	IP           string    `gorm:"size:50" json:"ip"`
	UserAgent    string    `gorm:"size:500" json:"user_agent"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (OperationLog) TableName() string { return "operation_logs" }
