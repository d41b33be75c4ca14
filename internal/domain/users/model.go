package users

import "time"

// User is an API operator account (staff or admin), not a member.
type User struct {
	ID       uint `gorm:"primaryKey"`
	Name     string
	Email    string `gorm:"not null;uniqueIndex:idx_users_email"`
	Password string `gorm:"not null"`
	Role     string `gorm:"type:varchar(20);not null;default:'staff'"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
