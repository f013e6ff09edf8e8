// Package models holds the persistent records of the auth server.
package models

import "time"

// User is a registered account. PasswordHash is an encoded digest and never
// leaves the server.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile is the public view of a User.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}
