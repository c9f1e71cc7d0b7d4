package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "USER"
	ActorTypeSystem ActorType = "SYSTEM"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	LedgerID   *snowflake.ID     `gorm:"index" json:"ledger_id,omitempty"`
	ActorType  string            `gorm:"size:20;not null" json:"actor_type"`
	ActorID    *string           `gorm:"size:64" json:"actor_id,omitempty"`
	Action     string            `gorm:"size:100;not null" json:"action"`
	TargetType string            `gorm:"size:50;not null" json:"target_type"`
	TargetID   *string           `gorm:"size:64" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	IPAddress  *string           `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}
