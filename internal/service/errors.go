// Package service implements the business operations over the stores and the
// realtime push layer. Services persist first and emit push events only after
// the mutation has committed, with recipient sets snapshotted at commit time.
package service

import (
	"fmt"

	"github.com/tasksync/tasksync-api/internal/domain"
)

// Common service errors.
var (
	// ErrNotOwner is returned when a non-owner attempts an owner-only
	// operation (update, delete, share, unshare).
	ErrNotOwner = fmt.Errorf("%w: only the task owner may perform this operation", domain.ErrUnauthorized)

	// ErrNotVisible is returned when a user requests a task they neither own
	// nor have been shared.
	ErrNotVisible = fmt.Errorf("%w: task is not visible to this user", domain.ErrUnauthorized)

	// ErrInvalidCredentials is returned on a failed login attempt. It is
	// deliberately identical for unknown email and wrong password.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
)
