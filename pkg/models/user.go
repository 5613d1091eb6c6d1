package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account known to the server. Names are unique.
type User struct {
	ID   string  `gorm:"primaryKey;size:36" json:"id"`
	Name string  `gorm:"uniqueIndex;not null;size:255" json:"name" validate:"required,max=255"`
	Tag  *string `gorm:"size:255" json:"tag,omitempty" validate:"omitempty,max=255"`

	Credentials []UserCredentials `gorm:"foreignKey:ModelID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "user"
}

// BeforeCreate assigns a random id when none is set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// GetTag returns the tag or "" when unset.
func (u *User) GetTag() string {
	if u.Tag == nil {
		return ""
	}
	return *u.Tag
}

// Description renders the user the way it is stored.
func (u *User) Description() string {
	tag := "nil"
	if u.Tag != nil {
		tag = fmt.Sprintf("%q", *u.Tag)
	}
	return fmt.Sprintf("User(id: %s, name: %q, tag: %s)", strings.ToUpper(u.ID), u.Name, tag)
}
