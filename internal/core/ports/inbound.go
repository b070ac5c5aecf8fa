package ports

import (
	"context"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

// ChatPipeline is the inbound contract for one grounded-answer invocation.
// When shouldStream is true the result carries an unstarted answer stream
// instead of a materialized answer.
type ChatPipeline interface {
	Run(
		ctx context.Context,
		history []domain.Turn,
		overrides domain.Overrides,
		claims domain.AuthClaims,
		shouldStream bool,
	) (*domain.PipelineResult, error)
}
