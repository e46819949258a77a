package domain

import "time"

// User represents an end user (resource owner) that can authorize apps.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
}
