package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/store"
)

// DefaultPassword is given to workers created without one. They are
// expected to change it.
const DefaultPassword = "Pass@1234"

// WorkerInput describes a worker to create.
type WorkerInput struct {
	FullName string
	Username string
	Email    string
	Phone    string
	Role     schema.Role
	// Password is plaintext; empty means DefaultPassword.
	Password string
}

// CreateWorker adds a worker with a hashed password and a fresh id.
// Returns store.ErrDuplicateUsername if the username is taken.
func (s *Shop) CreateWorker(ctx context.Context, in WorkerInput) (*schema.Worker, error) {
	role := in.Role
	if role == "" {
		role = schema.RoleClient
	}
	password := in.Password
	if password == "" {
		password = DefaultPassword
	}

	hash, err := schema.HashPassword(password)
	if err != nil {
		return nil, err
	}

	w := &schema.Worker{
		ID:       uuid.NewString(),
		FullName: strings.TrimSpace(in.FullName),
		Username: strings.TrimSpace(in.Username),
		Email:    strings.TrimSpace(in.Email),
		Phone:    strings.TrimSpace(in.Phone),
		Password: hash,
		Role:     role,
	}
	if err := s.st.CreateWorker(ctx, w); err != nil {
		return nil, err
	}

	s.logger.Printf("Created worker %s (%s)", w.Username, w.Role)
	return w, nil
}

// Authenticate checks a username and password against the local users
// table and returns the worker on success.
func (s *Shop) Authenticate(ctx context.Context, username, password string) (*schema.Worker, error) {
	w, err := s.st.GetWorkerByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !w.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return w, nil
}

// ChangePassword replaces a worker's password after checking the old one.
func (s *Shop) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	w, err := s.Authenticate(ctx, username, oldPassword)
	if err != nil {
		return err
	}
	hash, err := schema.HashPassword(newPassword)
	if err != nil {
		return err
	}
	w.Password = hash
	if err := s.st.UpdateWorker(ctx, w); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	return nil
}

// Workers lists every worker.
func (s *Shop) Workers(ctx context.Context) ([]*schema.Worker, error) {
	return s.st.ListWorkers(ctx)
}
