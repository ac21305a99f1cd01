package validate

import (
	"context"
	"fmt"

	"github.com/velocitylabs/vcollect/log"
	"github.com/velocitylabs/vcollect/types"
)

// Result is the outcome of validating one command transcript.
type Result struct {
	Status types.ValidationStatus

	// Score is the best template's score, 0..100.
	Score float64

	// TemplateID and TemplateCommand identify the winning template.
	// Both are zero when no template matched the filter.
	TemplateID      int64
	TemplateCommand string

	// RecordCount is how many records the winning template extracted.
	RecordCount int

	Breakdown Breakdown
}

// Engine validates transcripts against the template library.
type Engine struct {
	store  *Store
	logger *log.Logger
}

// NewEngine creates an engine over the given template store.
func NewEngine(store *Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// Validate parses output with every template selected by filter,
// scores each, and keeps the best. A score below minScore fails
// validation. An empty candidate set reports no-template with score 0;
// callers treat that like a failed validation, since unjudged output
// is not validated output.
func (e *Engine) Validate(ctx context.Context, output, filter string, minScore float64) (Result, error) {
	candidates, err := e.store.Filtered(ctx, filter)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		e.logger.Debug("no templates match filter", map[string]any{"filter": filter})
		return Result{Status: types.ValidationNoTemplate}, nil
	}

	best := Result{Status: types.ValidationFailed}
	for _, candidate := range candidates {
		tpl, err := ParseTemplate(candidate.Content)
		if err != nil {
			e.logger.Debug("skipping unparseable template", map[string]any{
				"template_id": candidate.ID,
				"command":     candidate.Command,
				"error":       err.Error(),
			})
			continue
		}
		records, err := tpl.Execute(output)
		if err != nil || len(records) == 0 {
			continue
		}

		breakdown := ScoreRecords(candidate.Command, records, tpl.Header())
		if score := breakdown.Total(); score > best.Score {
			best.Score = score
			best.TemplateID = candidate.ID
			best.TemplateCommand = candidate.Command
			best.RecordCount = len(records)
			best.Breakdown = breakdown
		}
	}

	if best.TemplateID == 0 {
		// Candidates existed but none extracted a single record.
		best.Status = types.ValidationFailed
		if minScore <= 0 {
			best.Status = types.ValidationPassed
		}
		return best, nil
	}
	if best.Score >= minScore {
		best.Status = types.ValidationPassed
	}
	return best, nil
}

// DescribeScore renders a short human summary of a validation result.
func DescribeScore(r Result) string {
	switch r.Status {
	case types.ValidationNoTemplate:
		return "no matching template"
	case types.ValidationSkipped:
		return "validation skipped"
	default:
		return fmt.Sprintf("score %.1f (template %q, %d records)",
			r.Score, r.TemplateCommand, r.RecordCount)
	}
}
