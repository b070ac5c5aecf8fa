package usecase

import (
	"context"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
)

// retrieve issues one hybrid search call for the rewritten query. The vector
// embedding is computed here, never inside the search service.
func (uc *ChatPipelineUseCase) retrieve(
	ctx context.Context,
	trace *thoughtTrace,
	query domain.RetrievalQuery,
	opts domain.Options,
	filter string,
) ([]domain.SearchHit, error) {
	useText, useVector := opts.RetrievalMode.Flags()

	var vectors []domain.VectorQuery
	if useVector {
		vq, err := uc.embedder.EmbedQuery(ctx, query.Text)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCollaborator, stageRetrieve, err)
		}
		vectors = append(vectors, vq)
	}

	trace.add(thoughtSearchQuery, query.Text, map[string]any{
		"use_semantic_captions": opts.UseSemanticCaptions,
		"use_semantic_ranker":   opts.UseSemanticRanker,
		"top":                   opts.Top,
		"filter":                filter,
		"use_vector_search":     useVector,
		"use_text_search":       useText,
	})

	req := ports.SearchRequest{
		Top:                 opts.Top,
		Filter:              filter,
		UseSemanticRanker:   opts.UseSemanticRanker,
		UseSemanticCaptions: opts.UseSemanticCaptions,
	}
	if useText {
		req.QueryText = query.Text
	}
	if useVector {
		req.Vectors = vectors
	}

	hits, err := uc.search.Search(ctx, req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, stageRetrieve, err)
	}
	return filterHits(hits, opts.MinimumSearchScore, opts.MinimumRerankerScore, opts.Top), nil
}

// filterHits applies the score floors before truncating to top, so
// low-scoring hits never crowd out qualifying ones. Missing reranker scores
// count as zero. Server relevance order is preserved.
func filterHits(hits []domain.SearchHit, minScore, minRerankerScore float64, top int) []domain.SearchHit {
	out := hits
	if minScore > 0 || minRerankerScore > 0 {
		kept := make([]domain.SearchHit, 0, len(hits))
		for _, h := range hits {
			reranker := 0.0
			if h.RerankerScore != nil {
				reranker = *h.RerankerScore
			}
			if h.Score >= minScore && reranker >= minRerankerScore {
				kept = append(kept, h)
			}
		}
		out = kept
	}
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}
