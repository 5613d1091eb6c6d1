package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserToken is a bearer token issued to a client agent. Key holds the
// signed token string presented by clients.
type UserToken struct {
	ID       string            `gorm:"primaryKey;size:36" json:"id"`
	ParentID string            `gorm:"column:parent;size:36;not null;index" json:"credentials_id"`
	Agent    string            `gorm:"not null;size:255" json:"agent" validate:"required,max=255"`
	Info     map[string][]byte `gorm:"serializer:json;type:text" json:"info,omitempty"`
	Key      string            `gorm:"uniqueIndex;not null" json:"-"`
	Created  time.Time         `gorm:"column:created;autoCreateTime;not null" json:"created"`
	Modified time.Time         `gorm:"column:modified;autoUpdateTime" json:"modified"`
	Expired  *time.Time        `gorm:"column:expired" json:"expires,omitempty"`
}

// TableName returns the table name for UserToken.
func (UserToken) TableName() string {
	return "user_token"
}

// BeforeCreate assigns a random id when none is set.
func (t *UserToken) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// IsValid reports whether the token may still be used at now. A token
// without an expiry is never valid.
func (t *UserToken) IsValid(now time.Time) bool {
	if t.Expired == nil {
		return false
	}
	return !t.Expired.Before(now)
}

// Description renders the token without its key.
func (t *UserToken) Description() string {
	expired := "nil"
	if t.Expired != nil {
		expired = formatTime(*t.Expired)
	}
	return fmt.Sprintf("UserToken(id: %s, parent: %s, agent: %q, expired: %s)",
		strings.ToUpper(t.ID), strings.ToUpper(t.ParentID), t.Agent, expired)
}
