package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shahabnazari/litpipe/internal/core/domain"
)

// PrepareConfig sets the content-length thresholds for payload preparation.
type PrepareConfig struct {
	// MinContentLength is the floor below which a source carries too
	// little text to extract anything from and is dropped.
	MinContentLength int
	// FullTextMin is the minimum full-text length to use it over the abstract.
	FullTextMin int
	// AbstractOverflowMin marks an abstract long enough to stand in for
	// missing full text.
	AbstractOverflowMin int
}

// DefaultPrepareConfig mirrors the extraction service's input guidance.
var DefaultPrepareConfig = PrepareConfig{
	MinContentLength:    100,
	FullTextMin:         500,
	AbstractOverflowMin: 2000,
}

// classifyContent picks the best available content for one source and
// explains the decision. keep=false means the source is dropped from the
// payload.
func classifyContent(src *domain.Source, cfg PrepareConfig) (tier domain.ContentTier, content, reason string, keep bool) {
	switch {
	case len(src.FullText) >= cfg.FullTextMin:
		return domain.TierFullText, src.FullText,
			fmt.Sprintf("full text available (%d chars)", len(src.FullText)), true

	case len(src.Abstract) >= cfg.AbstractOverflowMin:
		return domain.TierAbstractOverflow, src.Abstract,
			fmt.Sprintf("no full text; long abstract (%d chars) used instead", len(src.Abstract)), true

	case len(src.Abstract) >= cfg.MinContentLength:
		return domain.TierAbstract, src.Abstract,
			fmt.Sprintf("abstract only (%d chars)", len(src.Abstract)), true

	default:
		longest := max(len(src.Abstract), len(src.FullText))
		return domain.TierNone, "",
			fmt.Sprintf("content too short (%d chars, minimum %d)", longest, cfg.MinContentLength), false
	}
}

// preparePayload classifies every fetched source and assembles the
// downstream extraction payload. Synchronous: no I/O happens here.
func preparePayload(items map[string]*domain.Source, idMap map[string]string, cfg PrepareConfig) *domain.ExtractionPayload {
	payload := &domain.ExtractionPayload{
		RunID: uuid.NewString(),
		Stats: domain.PayloadStats{Total: len(items)},
	}

	for orig, src := range items {
		tier, content, reason, keep := classifyContent(src, cfg)
		if !keep {
			payload.Stats.Dropped++
			slog.Debug("Dropping source from payload", "source", orig, "reason", reason)
			continue
		}

		switch tier {
		case domain.TierFullText:
			payload.Stats.FullText++
		case domain.TierAbstractOverflow:
			payload.Stats.AbstractOverflow++
		case domain.TierAbstract:
			payload.Stats.Abstract++
		}

		persisted := src.PersistedID
		if persisted == "" {
			persisted = idMap[orig]
		}
		payload.Items = append(payload.Items, domain.ExtractionItem{
			PersistedID: persisted,
			Title:       src.Title,
			Tier:        tier,
			Content:     content,
			Reason:      reason,
		})
		slog.Debug("Keeping source in payload", "source", orig, "tier", tier, "reason", reason)
	}

	return payload
}
