package usecase

import (
	"strconv"
	"strings"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

// AssembleSources converts retrieval hits into citable evidence lines of the
// form "<sourcepage>: <text>". The caption replaces the full content when
// semantic captions are on and a caption exists. Newlines are flattened so
// each entry stays on one prompt line. Order follows retrieval rank; no
// deduplication.
func AssembleSources(hits []domain.SearchHit, useSemanticCaptions, useImageCitation bool) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		text := h.Content
		if useSemanticCaptions && h.Caption != "" {
			text = h.Caption
		}
		text = strings.ReplaceAll(text, "\r\n", " ")
		text = strings.ReplaceAll(text, "\n", " ")
		text = strings.ReplaceAll(text, "\r", " ")
		out = append(out, citation(h.SourcePage, useImageCitation)+": "+text)
	}
	return out
}

// citation maps a rendered page image back to its source document page
// ("doc-3.png" becomes "doc.pdf#page=3") unless image citations are wanted
// as-is.
func citation(sourcePage string, useImageCitation bool) string {
	if useImageCitation {
		return sourcePage
	}

	base, ok := strings.CutSuffix(sourcePage, ".png")
	if !ok {
		base, ok = strings.CutSuffix(sourcePage, ".PNG")
	}
	if !ok {
		return sourcePage
	}

	dash := strings.LastIndex(base, "-")
	if dash < 0 {
		return sourcePage
	}
	page, err := strconv.Atoi(base[dash+1:])
	if err != nil {
		return sourcePage
	}
	return base[:dash] + ".pdf#page=" + strconv.Itoa(page)
}

func serializeHits(hits []domain.SearchHit) []map[string]any {
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Serialize())
	}
	return out
}
