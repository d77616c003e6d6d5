package services

import (
	"context"

	"github.com/cmpc-libros/apiserver/types"
	"go.uber.org/zap"
)

// AuditRepository defines persistence operations for audit entries.
type AuditRepository interface {
	Insert(ctx context.Context, entry types.AuditEntry) error
	List(ctx context.Context, limit, offset int) ([]types.AuditEntry, error)
}

// AuditService records one entry per request/response pair. Recording is
// best-effort: a failed insert is logged and swallowed so it can never
// fail the primary request.
type AuditService struct {
	repo   AuditRepository
	logger *zap.SugaredLogger
}

func NewAuditService(repo AuditRepository, logger *zap.SugaredLogger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

// Record appends an audit entry, swallowing any store failure.
func (s *AuditService) Record(ctx context.Context, entry types.AuditEntry) {
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Errorw("failed to record audit entry",
			"action", entry.Action,
			"route", entry.Route,
			"error", err,
		)
	}
}

// List returns recent audit entries, newest first.
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]types.AuditEntry, error) {
	return s.repo.List(ctx, limit, offset)
}
