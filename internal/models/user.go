package models

import (
	"time"

	"authapp/internal/credentials"
)

// User is an account record. Password always holds an encoded hash (or the
// unusable-password marker) once the record has been persisted.
type User struct {
	ID        uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username  string     `json:"username" gorm:"uniqueIndex;size:20;not null" validate:"required,max=20"`
	Password  string     `json:"-" gorm:"size:256;not null" validate:"max=256"` // Never serialized
	Name      string     `json:"name" gorm:"size:250" validate:"max=250"`
	Email     string     `json:"email" gorm:"size:100" validate:"omitempty,email,max=100"`
	IsAdmin   bool       `json:"is_admin" gorm:"not null;default:false"`
	IsActive  bool       `json:"is_active" gorm:"not null"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewUser returns an active, non-admin account without a password.
func NewUser(username string) *User {
	return &User{
		Username: username,
		IsActive: true,
	}
}

func (User) TableName() string { return "users" }

// SetPassword hashes raw and stores the result. An empty raw password locks
// the account instead.
func (u *User) SetPassword(h credentials.Hasher, raw string) error {
	if raw == "" {
		u.SetUnusablePassword()
		return nil
	}
	encoded, err := h.Hash(raw)
	if err != nil {
		return err
	}
	u.Password = encoded
	return nil
}

// CheckPassword reports whether raw matches the stored hash.
func (u *User) CheckPassword(h credentials.Hasher, raw string) bool {
	if !u.HasUsablePassword() {
		return false
	}
	return h.Verify(raw, u.Password)
}

func (u *User) SetUnusablePassword() {
	u.Password = credentials.Unusable()
}

func (u *User) HasUsablePassword() bool {
	return credentials.IsUsable(u.Password)
}

// EncodedPassword and SetEncodedPassword let the storage hook seal the field.
func (u *User) EncodedPassword() string { return u.Password }

func (u *User) SetEncodedPassword(encoded string) { u.Password = encoded }
