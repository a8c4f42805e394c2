package user

import "time"

type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// ParseStatus accepts only the two persisted statuses, exact case.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusBlocked:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	RoleID       int64     `json:"-"`
	Role         string    `json:"role"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public is the minimal projection handed back on login.
type Public struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status Status `json:"status"`
}

func (u User) Public() Public {
	return Public{
		ID:     u.ID,
		Name:   u.Name,
		Role:   u.Role,
		Status: u.Status,
	}
}

func (u User) Blocked() bool {
	return u.Status == StatusBlocked
}
