// Package models holds the records the development backend keeps in memory.
package models

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	PublicKey    string
	IsAdmin      bool
	CreatedAt    time.Time
}
