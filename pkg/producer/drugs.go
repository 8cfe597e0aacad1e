package producer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/soundprediction/casegraph/pkg/document"
)

// DrugAnnotator writes the canonical names of drugs mentioned in a record's email
// bodies into drugsRXnorm.
type DrugAnnotator struct {
	extractor CandidateExtractor
	lookup    DrugLookup
	logger    *slog.Logger
}

// NewDrugAnnotator creates an annotator. A nil extractor selects
// CapitalizedTermExtractor.
func NewDrugAnnotator(extractor CandidateExtractor, lookup DrugLookup, logger *slog.Logger) *DrugAnnotator {
	if extractor == nil {
		extractor = CapitalizedTermExtractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DrugAnnotator{extractor: extractor, lookup: lookup, logger: logger}
}

// Drugs returns the sorted unique canonical drug names found in payload. Lookup
// failures are logged and treated as no match.
func (a *DrugAnnotator) Drugs(ctx context.Context, payload *document.Value) ([]string, error) {
	seen := make(map[string]bool)
	for _, term := range a.extractor.Candidates(recordText(payload)) {
		if !IsValidDrugTerm(term) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := a.lookup.Lookup(ctx, term)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("Drug lookup failed", "term", term, "error", err)
			continue
		}
		if name != "" {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Annotate sets drugsRXnorm on every record that normalizes and returns how many
// records were annotated. Skipped records pass through unchanged.
func (a *DrugAnnotator) Annotate(ctx context.Context, records []*document.Value) (int, error) {
	annotated := 0
	for i, rec := range records {
		res := document.NormalizeValue(rec)
		if res.Skipped() {
			a.logger.Debug("Skipping record for drug annotation", "index", i, "reason", res.Reason)
			continue
		}
		names, err := a.Drugs(ctx, res.Payload)
		if err != nil {
			return annotated, err
		}
		list := document.List()
		for _, n := range names {
			list.Append(document.String(n))
		}
		annotationTarget(res.Payload).Set(document.FieldDrugs, list)
		if _, err := res.Encode(); err != nil {
			return annotated, err
		}
		annotated++
	}
	return annotated, nil
}
