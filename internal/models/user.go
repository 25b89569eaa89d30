// Package models holds gorm entities shared across services.
package models

import "time"

type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	UUID         string `gorm:"type:varchar(36);uniqueIndex;not null" json:"id"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	IsAdmin      bool   `gorm:"not null;default:false" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

func (User) TableName() string { return "users" }
