package core

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tablestore/internal/logging"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
	maxNameLength    = 200
)

const invalidCredentials = "Invalid email or password"

// Register creates an account. The first account ever created receives
// every permission; that decision is made by the repository atomically
// with the insert.
func (s *Service) Register(ctx context.Context, in NewUser) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}
	name, err := s.cleanName(in.Name)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	bootstrap := false
	err = s.users.CreateUser(ctx, u, func(first *User) {
		first.Permissions = AllPermissions
		bootstrap = true
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, &Error{Kind: KindConflict, Message: "Email already registered", Err: err}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit(ctx, Actor{UserID: u.ID, Email: u.Email}, ActionUserRegister, auditResourceUser, u.ID, map[string]any{
		"bootstrap_admin": bootstrap,
	})
	logging.FromContext(ctx).Info("user registered", "target_user_id", u.ID, "bootstrap_admin", bootstrap)
	return u, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, Unauthorized(invalidCredentials)
	}
	u, err := s.users.GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, Unauthorized(invalidCredentials)
	}
	return u, nil
}

// Me returns the actor's own record.
func (s *Service) Me(ctx context.Context, actor Actor) (*User, error) {
	return s.loadUser(ctx, actor.UserID)
}

// ResolveActor returns the current identity for an authenticated user id.
// Permissions come from the store, not from token claims.
func (s *Service) ResolveActor(ctx context.Context, userID string) (Actor, error) {
	if a, ok := s.actors.get(userID); ok {
		return a, nil
	}
	if _, err := uuid.Parse(userID); err != nil {
		return Actor{}, Unauthorized("Invalid token subject")
	}
	gen := s.actors.generation()
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Actor{}, Unauthorized("User no longer exists")
		}
		return Actor{}, fmt.Errorf("resolve actor: %w", err)
	}
	a := Actor{UserID: u.ID, Email: u.Email, Permissions: u.Permissions}
	s.actors.put(a, gen)
	return a, nil
}

func (s *Service) ListUsers(ctx context.Context, actor Actor) ([]User, error) {
	if err := s.policy.AuthorizeUserAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, actor Actor, id string) (*User, error) {
	if err := s.policy.AuthorizeUserAdmin(actor); err != nil {
		return nil, err
	}
	return s.loadUser(ctx, id)
}

// UpdateUser applies a profile patch. Only name and email are editable here.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, id string, patch UserPatch) (*User, error) {
	if err := s.policy.AuthorizeUserAdmin(actor); err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := make(map[string]any)
	if patch.Name != nil {
		name, err := s.cleanName(*patch.Name)
		if err != nil {
			return nil, err
		}
		if name != u.Name {
			detail["name"] = map[string]any{"from": u.Name, "to": name}
		}
		u.Name = name
	}
	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		if email != u.Email {
			detail["email"] = map[string]any{"from": u.Email, "to": email}
		}
		u.Email = email
	}

	if err := s.users.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, &Error{Kind: KindConflict, Message: "Email already in use", Err: err}
		}
		return nil, translate(err, "User")
	}
	s.actors.invalidate(id)

	s.audit(ctx, actor, ActionUserUpdate, auditResourceUser, id, detail)
	return u, nil
}

// UpdatePermissions replaces a user's permission set. Unknown names are
// rejected, and an actor may not drop manage_users from themself.
func (s *Service) UpdatePermissions(ctx context.Context, actor Actor, id string, names []string) (*User, error) {
	if err := s.policy.AuthorizeUserAdmin(actor); err != nil {
		return nil, err
	}
	next, err := ParsePermissionSet(names)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckPermissionUpdate(actor, id, next); err != nil {
		return nil, err
	}

	u, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := u.Permissions
	u.Permissions = next
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, translate(err, "User")
	}
	s.actors.invalidate(id)

	s.audit(ctx, actor, ActionUserPermissions, auditResourceUser, id, map[string]any{
		"from": prev.Names(),
		"to":   next.Names(),
	})
	logging.FromContext(ctx).Info("permissions updated",
		"target_user_id", id,
		"permissions", next.Names(),
	)
	return u, nil
}

// DeleteUser removes a user and everything they own. Artifact removal is
// best effort; the file records and the user are always deleted.
func (s *Service) DeleteUser(ctx context.Context, actor Actor, id string) error {
	if err := s.policy.AuthorizeUserAdmin(actor); err != nil {
		return err
	}
	if err := s.policy.CheckUserDeletion(actor, id); err != nil {
		return err
	}
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return err
	}

	owned, err := s.files.ListFiles(ctx, FileFilter{OwnerID: id})
	if err != nil {
		return fmt.Errorf("list owned files: %w", err)
	}
	for _, f := range owned {
		s.removeArtifact(ctx, f.StoredName)
	}
	removed, err := s.files.DeleteFilesByOwner(ctx, id)
	if err != nil {
		return fmt.Errorf("delete owned files: %w", err)
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return translate(err, "User")
	}
	s.actors.invalidate(id)

	s.audit(ctx, actor, ActionUserDelete, auditResourceUser, id, map[string]any{
		"email":         u.Email,
		"files_removed": removed,
	})
	logging.FromContext(ctx).Info("user deleted",
		"target_user_id", id,
		"files_removed", removed,
	)
	return nil
}

func (s *Service) loadUser(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, NotFound("User")
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, translate(err, "User")
	}
	return u, nil
}

// cleanName strips markup from a display name.
func (s *Service) cleanName(raw string) (string, error) {
	name := strings.TrimSpace(html.UnescapeString(s.names.Sanitize(raw)))
	if name == "" {
		return "", Validation("Name is required")
	}
	if len(name) > maxNameLength {
		return "", Validation(fmt.Sprintf("Name must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", Validation("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", Validation("Invalid email address")
	}
	return email, nil
}

func checkPassword(pw string) error {
	if len(pw) < minPasswordLength {
		return Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len(pw) > maxPasswordBytes {
		return Validation(fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
