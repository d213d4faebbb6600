package models

import "time"

// User is a salesperson that can log in and act on clients.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"password"` // never sent in JSON responses
	Name         string    `json:"nombre" bson:"nombre"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Credentials for login request
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegistrationPayload for user registration
type RegistrationPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"nombre" binding:"required"`
}
