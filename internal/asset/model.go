// Package asset stores asset records and enforces their naming rules.
package asset

import (
	"time"

	"asset-tracker/internal/user"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 500
)

type Asset struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"uniqueIndex;size:200;not null" json:"name"`
	Description string     `gorm:"size:500" json:"description"`
	OwnerID     uint       `gorm:"not null;index" json:"ownerId"`
	Owner       *user.User `gorm:"foreignKey:OwnerID" json:"-"`
	DateCreated time.Time  `gorm:"column:date_created;not null;autoCreateTime" json:"dateCreated"`
	CreatedBy   string     `gorm:"size:150" json:"createdBy"`
}
