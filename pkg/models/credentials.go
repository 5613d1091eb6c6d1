package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserCredentials groups the tokens issued to one user. Deleting it is a
// soft delete; a user cannot be removed while credentials reference it.
type UserCredentials struct {
	ID       string         `gorm:"primaryKey;size:36" json:"id"`
	ModelID  string         `gorm:"column:model_id;size:36;not null;index" json:"user_id"`
	Created  time.Time      `gorm:"column:created;autoCreateTime;not null" json:"created"`
	Modified time.Time      `gorm:"column:modified;autoUpdateTime" json:"modified"`
	Deleted  gorm.DeletedAt `gorm:"column:deleted;index" json:"-"`

	Tokens []UserToken `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for UserCredentials.
func (UserCredentials) TableName() string {
	return "user_credentials"
}

// BeforeCreate assigns a random id when none is set.
func (c *UserCredentials) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Description renders the credentials the way they are stored.
func (c *UserCredentials) Description() string {
	return fmt.Sprintf("UserCredentials(id: %s, model: %s, created: %s, modified: %s)",
		strings.ToUpper(c.ID),
		strings.ToUpper(c.ModelID),
		formatTime(c.Created),
		formatTime(c.Modified),
	)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "nil"
	}
	return t.UTC().Format(time.RFC3339)
}
