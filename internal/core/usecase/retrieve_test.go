package usecase

import (
	"testing"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

func TestFilterHitsAppliesFloorsBeforeTruncating(t *testing.T) {
	high := 3.5
	low := 1.0
	hits := []domain.SearchHit{
		{ID: "1", Score: 0.9, RerankerScore: &low},
		{ID: "2", Score: 0.8, RerankerScore: &high},
		{ID: "3", Score: 0.7, RerankerScore: &high},
		{ID: "4", Score: 0.6, RerankerScore: &high},
	}

	got := filterHits(hits, 0, 2.0, 2)

	// Hit 1 fails the reranker floor, so the top-2 window slides down to
	// hits 2 and 3 instead of cutting to 1 and 2 first.
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Fatalf("hits = %+v, want ids 2 and 3", got)
	}
}

func TestFilterHitsMissingRerankerCountsAsZero(t *testing.T) {
	hits := []domain.SearchHit{
		{ID: "1", Score: 0.9},
	}

	if got := filterHits(hits, 0, 0.5, 10); len(got) != 0 {
		t.Fatalf("hits = %+v, want none", got)
	}
	if got := filterHits(hits, 0.5, 0, 10); len(got) != 1 {
		t.Fatalf("hits = %+v, want the score-qualifying hit kept", got)
	}
}

func TestFilterHitsNoFloorsNoFiltering(t *testing.T) {
	hits := []domain.SearchHit{
		{ID: "1", Score: 0},
		{ID: "2", Score: 0},
	}

	got := filterHits(hits, 0, 0, 5)
	if len(got) != 2 {
		t.Fatalf("hits = %+v, want all kept when no floor is set", got)
	}
}

func TestFilterHitsPreservesOrder(t *testing.T) {
	hits := []domain.SearchHit{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.9},
		{ID: "c", Score: 0.7},
	}

	got := filterHits(hits, 0.4, 0, 3)
	if got[0].ID != "b" || got[1].ID != "a" || got[2].ID != "c" {
		t.Fatalf("hits = %+v, server order must be preserved", got)
	}
}
