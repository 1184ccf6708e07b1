package models

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleParent  UserRole = "parent"
	RoleAdmin   UserRole = "admin"
)

// User mirrors the identity provider's record; the service does not own
// user accounts.
type User struct {
	ID            string   `json:"id" gorm:"primaryKey;size:255"`
	FullName      string   `json:"full_name" gorm:"size:255"`
	Email         string   `json:"email" gorm:"size:255;index"`
	Role          UserRole `json:"role" gorm:"default:student;index"`
	AvatarURL     *string  `json:"avatar_url" gorm:"size:500"`
	EmailVerified bool     `json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanGrade reports whether the role may grade answers and release results.
func (r UserRole) CanGrade() bool {
	return r == RoleTeacher || r == RoleAdmin
}

func (u *User) CanGrade() bool {
	return u.Role.CanGrade()
}
