package scraper

import (
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
)

// mapExtractionErrorToMetadataCause maps extraction failures to the canonical
// metadata.ErrorCause table. Observational only.
func mapExtractionErrorToMetadataCause(err *crawl.ExtractionError) metadata.ErrorCause {
	switch err.Cause {
	case crawl.ErrCauseExtractorFailed, crawl.ErrCauseExtractorPanic:
		return metadata.CauseContentInvalid
	case crawl.ErrCauseUnknownExtractor:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
