// Package identity maps validated SAML assertions onto local user
// accounts. The binder persists the IDP-subject-to-local-user binding on
// first successful login and reuses it on every login thereafter.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Binding ties a stable IDP-issued subject identifier to a local user.
// At most one binding exists per subject ID; bindings are immutable once
// created and their deletion is managed outside this package.
type Binding struct {
	SubjectID string
	UserID    int64
}

// User is the slice of the host's user record the binder needs.
type User struct {
	ID       int64
	Username string
	Email    string
}

// BindingStore persists subject-to-user bindings. PutIfAbsent is the
// single write path: one atomic upsert-if-absent keyed uniquely by
// subject ID, returning the winning binding whether or not this call
// created it. That property carries the at-most-one-binding invariant
// under concurrent first-time logins.
type BindingStore interface {
	Get(ctx context.Context, subjectID string) (*Binding, error)
	PutIfAbsent(ctx context.Context, subjectID string, userID int64) (*Binding, error)
}

// UserDirectory looks up local users by email. FindByEmail returns
// ErrNotFound when no user matches.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// State describes how a login attempt resolved against the binding
// store.
type State string

const (
	// StateBound: an existing binding resolved the subject directly.
	StateBound State = "bound"

	// StateBoundByLookup: no binding existed; a user was found by email
	// and the binding was created here.
	StateBoundByLookup State = "bound_by_lookup"

	// StateUnresolved: no binding and no user; the host must create an
	// account and call BindNewAccount afterwards.
	StateUnresolved State = "unresolved"
)

// Resolution is the outcome of resolving one subject against the
// binding store.
type Resolution struct {
	SubjectID string
	State     State
	UserID    int64 // zero when unresolved
}

type Binder struct {
	bindings BindingStore
	users    UserDirectory
	logger   hclog.Logger
}

// NewBinder creates a Binder over the given binding store and user
// directory.
func NewBinder(bindings BindingStore, users UserDirectory, logger hclog.Logger) (*Binder, error) {
	const op = "identity.NewBinder"

	switch {
	case bindings == nil:
		return nil, fmt.Errorf("%s: missing binding store: %w", op, ErrInvalidParameter)
	case users == nil:
		return nil, fmt.Errorf("%s: missing user directory: %w", op, ErrInvalidParameter)
	}

	if logger == nil {
		logger = hclog.Default().Named("identity")
	}

	return &Binder{
		bindings: bindings,
		users:    users,
		logger:   logger,
	}, nil
}

// Resolve runs the binding state machine for one login attempt:
//
//  1. An existing binding for the subject resolves directly to the bound
//     user, even if the asserted email has since changed.
//  2. Otherwise a user found by the asserted email is bound now; this is
//     the only binding-creation point on the login path and first match
//     wins under concurrency.
//  3. Otherwise the attempt is unresolved and account creation is the
//     host's responsibility.
func (b *Binder) Resolve(ctx context.Context, subjectID, email string) (*Resolution, error) {
	const op = "identity.Binder.Resolve"

	if subjectID == "" {
		return nil, fmt.Errorf("%s: missing subject ID: %w", op, ErrInvalidParameter)
	}

	binding, err := b.bindings.Get(ctx, subjectID)
	switch {
	case err == nil:
		return &Resolution{SubjectID: subjectID, State: StateBound, UserID: binding.UserID}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%s: binding lookup failed: %w", op, err)
	}

	user, err := b.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return &Resolution{SubjectID: subjectID, State: StateUnresolved}, nil
	case err != nil:
		return nil, fmt.Errorf("%s: user lookup failed: %w", op, err)
	}

	won, err := b.bindings.PutIfAbsent(ctx, subjectID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: binding creation failed: %w", op, err)
	}

	if won.UserID != user.ID {
		// A concurrent login created the binding first; its user wins.
		b.logger.Debug("lost binding race, reusing existing binding",
			"subject_id", subjectID, "user_id", won.UserID)
		return &Resolution{SubjectID: subjectID, State: StateBound, UserID: won.UserID}, nil
	}

	return &Resolution{SubjectID: subjectID, State: StateBoundByLookup, UserID: won.UserID}, nil
}

// BindNewAccount persists the binding for an account the host created
// after an unresolved login. It is idempotent against a pre-existing
// binding for the same subject: the existing binding is kept and no
// error is returned.
func (b *Binder) BindNewAccount(ctx context.Context, subjectID string, userID int64) error {
	const op = "identity.Binder.BindNewAccount"

	switch {
	case subjectID == "":
		return fmt.Errorf("%s: missing subject ID: %w", op, ErrInvalidParameter)
	case userID == 0:
		return fmt.Errorf("%s: missing user ID: %w", op, ErrInvalidParameter)
	}

	won, err := b.bindings.PutIfAbsent(ctx, subjectID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if won.UserID != userID {
		b.logger.Warn("subject already bound to another user, keeping existing binding",
			"subject_id", subjectID, "bound_user_id", won.UserID, "requested_user_id", userID)
	}

	return nil
}
