package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/pulseboard/pulseboard/internal/platform/httpx"
	"github.com/pulseboard/pulseboard/internal/shared"
)

// Service exposes the administrative operations over roles and grants. Every
// operation decides authorization before touching storage.
type Service struct {
	repo   Repository
	guard  *Guard
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, guard *Guard, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, audit: audit, logger: logger}
}

// ListCapabilities returns the closed catalog.
func (s *Service) ListCapabilities() []Capability {
	return Catalog()
}

// Grants returns the explicit grant keys for a user. Admin or
// edit_permissions capability required.
func (s *Service) Grants(ctx context.Context, actor *Actor, targetID int64) ([]string, error) {
	if err := s.guard.RequireCapability(actor, CapEditPermissions).Err(); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, targetID)
}

// SetGrants replaces a user's grant set. The batch is all-or-nothing: any
// unknown key rejects the whole request with no rows written. Grants are
// meaningless below the moderator tier, so targets with role=user are
// refused.
func (s *Service) SetGrants(ctx context.Context, actor *Actor, targetID int64, keys []string) error {
	if err := s.guard.RequireCapability(actor, CapEditPermissions).Err(); err != nil {
		return err
	}
	if actor.ID == targetID {
		return httpx.ErrForbidden
	}

	deduped := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	var unknown []string
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !KnownCapability(key) {
			unknown = append(unknown, key)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, key)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown capability keys: %s", httpx.ErrRejected, strings.Join(unknown, ", "))
	}

	target, err := s.repo.FetchActor(ctx, targetID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return httpx.ErrNotFound
		}
		return err
	}
	if len(deduped) > 0 && target.Role == RoleUser {
		return fmt.Errorf("%w: grants require at least the moderator role", httpx.ErrRejected)
	}

	if err := s.repo.ReplaceGrants(ctx, targetID, deduped); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, shared.AuditGrantsChange, targetID, map[string]any{"keys": deduped})
	return nil
}

// SetRole changes a user's role. Admin only, self-target denied. Downgrading
// to the plain user tier deletes every explicit grant in the same
// transaction.
func (s *Service) SetRole(ctx context.Context, actor *Actor, targetID int64, role Role) error {
	if err := s.guard.Require(actor, RoleAdmin).Err(); err != nil {
		return err
	}
	if actor.ID == targetID {
		return httpx.ErrForbidden
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, role)
	}

	clearGrants := role == RoleUser
	if err := s.repo.UpdateRole(ctx, targetID, role, clearGrants); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return httpx.ErrNotFound
		}
		return err
	}
	s.recordAudit(ctx, actor.ID, shared.AuditRoleChange, targetID, map[string]any{"role": string(role)})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, targetID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(targetID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
