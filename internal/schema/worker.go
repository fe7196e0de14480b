package schema

import (
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role is a worker's permission level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RoleOwner  Role = "owner"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleOwner:
		return true
	}
	return false
}

// Roles lists the selectable roles.
var Roles = []Role{RoleClient, RoleAdmin, RoleOwner}

// Worker is a shop user. Password holds a bcrypt hash, never plaintext.
type Worker struct {
	ID       string `json:"id" yaml:"id"`
	FullName string `json:"full_name" yaml:"full_name"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
	Phone    string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Password string `json:"-" yaml:"-"`
	Role     Role   `json:"role" yaml:"role"`

	Synced bool  `json:"synced" yaml:"synced"`
	Rev    int64 `json:"-" yaml:"-"`
}

// Validate checks field values before the worker is written.
func (w *Worker) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(w.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if strings.ContainsAny(w.Username, " \t\n") {
		return fmt.Errorf("username cannot contain whitespace")
	}
	if strings.TrimSpace(w.FullName) == "" {
		return fmt.Errorf("full name is required")
	}
	if w.Email != "" {
		if _, err := mail.ParseAddress(w.Email); err != nil {
			return fmt.Errorf("invalid email %q", w.Email)
		}
	}
	if !w.Role.Valid() {
		return fmt.Errorf("invalid role %q (want admin, client or owner)", w.Role)
	}
	if w.Password == "" {
		return fmt.Errorf("password hash is required")
	}
	return nil
}

// RecordID implements Record.
func (w *Worker) RecordID() any { return w.ID }

// Revision implements Record.
func (w *Worker) Revision() int64 { return w.Rev }

// Fields implements Record. The password hash travels as opaque payload.
func (w *Worker) Fields() map[string]any {
	return map[string]any{
		"id":        w.ID,
		"full_name": w.FullName,
		"username":  w.Username,
		"email":     w.Email,
		"phone":     w.Phone,
		"password":  w.Password,
		"role":      string(w.Role),
	}
}

// HashPassword returns a bcrypt hash of plain.
func HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the worker's stored hash.
func (w *Worker) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(w.Password), []byte(plain)) == nil
}
