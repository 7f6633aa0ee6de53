package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	DisplayName  string    `gorm:"size:100" json:"display_name,omitempty"`
	FullName     string    `gorm:"size:200" json:"full_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Name resolves what rosters show for this user: the chosen display
// name, then the full name, then the login name.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
