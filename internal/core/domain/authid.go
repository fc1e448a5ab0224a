// Package domain contains the core entities and errors of the auth identifier broker.
package domain

import (
	"time"
)

// AuthID is an opaque bearer identifier issued to an end-client. The ID doubles as the
// primary key and the credential value presented in a request header.
type AuthID struct {
	ID         string    `json:"auth_id"`
	CustomerID *string   `json:"customer_id"` // Opaque tag, never validated against a registry
	Label      *string   `json:"label"`       // Human-readable, e.g. "bubble-client"
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// State returns the lifecycle state name of the identifier.
func (a *AuthID) State() string {
	if a.IsActive {
		return StateActive
	}
	return StateInactive
}

const (
	StateActive   = "active"
	StateInactive = "inactive"
)
