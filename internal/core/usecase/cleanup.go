package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
)

const cleanupReasonTimeout = "automatic_timeout"

// CleanupUseCase reclaims documents stuck in processing past the timeout.
type CleanupUseCase struct {
	repo    ports.DocumentRepository
	timeout time.Duration
	now     func() time.Time
}

func NewCleanupUseCase(repo ports.DocumentRepository, timeout time.Duration) *CleanupUseCase {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &CleanupUseCase{repo: repo, timeout: timeout, now: time.Now}
}

func (uc *CleanupUseCase) Sweep(ctx context.Context) (int, error) {
	now := uc.now().UTC()
	detail := domain.ErrorDetail{
		Message: domain.WrapError(
			domain.ErrProcessingTimeout,
			"cleanup sweep",
			fmt.Errorf("processing exceeded %s", uc.timeout),
		).Error(),
		FailedAt:      now,
		CleanupReason: cleanupReasonTimeout,
	}

	ids, err := uc.repo.FailStuck(ctx, now.Add(-uc.timeout), detail)
	if err != nil {
		return 0, fmt.Errorf("fail stuck documents: %w", err)
	}
	if len(ids) > 0 {
		slog.Warn("stuck_documents_reclaimed", "count", len(ids), "document_ids", ids, "timeout", uc.timeout.String())
	}
	return len(ids), nil
}
