package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pulseboard/pulseboard/internal/authz"
	"github.com/pulseboard/pulseboard/internal/platform/httpx"
	"github.com/pulseboard/pulseboard/internal/shared"
)

// Service handles account visibility and moderation.
type Service struct {
	repo   Repository
	guard  *authz.Guard
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, guard *authz.Guard, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, audit: audit, logger: logger}
}

// Profile returns the public view of an account. Blocked accounts are hidden
// as not found from everyone except the account itself and ban_user holders.
func (s *Service) Profile(ctx context.Context, actor *authz.Actor, id int64) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if profile.IsBlocked {
		self := actor != nil && actor.ID == id
		if !self && !s.guard.RequireCapability(actor, authz.CapBanUser).Allowed {
			return nil, httpx.ErrNotFound
		}
	}
	return profile, nil
}

// List returns every account. Admin only.
func (s *Service) List(ctx context.Context, actor *authz.Actor) ([]User, error) {
	if err := s.guard.Require(actor, authz.RoleAdmin).Err(); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// SetBlocked blocks or unblocks an account. Requires ban_user (or admin);
// self-targeting is always refused, so an admin cannot lock themselves out.
// Admin accounts cannot be blocked at all.
func (s *Service) SetBlocked(ctx context.Context, actor *authz.Actor, targetID int64, blocked bool) error {
	if err := s.guard.RequireOwnerAction(actor, targetID, authz.CapBanUser, true).Err(); err != nil {
		return err
	}
	target, err := s.repo.GetUser(ctx, targetID)
	if err != nil {
		return mapNotFound(err)
	}
	if blocked && target.Role == string(authz.RoleAdmin) {
		return fmt.Errorf("%w: admin accounts cannot be blocked", httpx.ErrRejected)
	}
	if target.IsBlocked == blocked {
		return fmt.Errorf("%w: account is already in the requested state", httpx.ErrRejected)
	}
	if err := s.repo.SetBlocked(ctx, targetID, blocked); err != nil {
		return mapNotFound(err)
	}

	action := shared.AuditUserBlock
	if !blocked {
		action = shared.AuditUserUnblock
	}
	s.recordAudit(ctx, actor.ID, action, targetID)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, targetID int64) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(targetID, 10),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return httpx.ErrNotFound
	}
	return err
}
