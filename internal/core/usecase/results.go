package usecase

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

// reviewRow pairs the display copy of a metric (translated when translation
// was applied) with its original-language source. Edits land on the display
// copy; edits is the cumulative patch so submission can tell an edited field
// from a translated one.
type reviewRow struct {
	display    domain.ExtractedMetric
	original   domain.RawMetric
	edits      domain.MetricPatch
	similarity *domain.SimilarityAnnotation
}

// ReviewSet is the user-editable collection of extracted metrics for one
// session. Rows carry a generated stable ID so edit and delete cannot break
// the mapping back to original-language data.
type ReviewSet struct {
	rows  []*reviewRow
	index map[string]*reviewRow
}

func newReviewSet(result *domain.AnalysisResult) *ReviewSet {
	displaySource := result.LabData
	if result.TranslationApplied && len(result.TranslatedData) == len(result.LabData) {
		displaySource = result.TranslatedData
	}

	set := &ReviewSet{index: make(map[string]*reviewRow, len(result.LabData))}
	for i, raw := range result.LabData {
		row := &reviewRow{
			display:  toExtracted(displaySource[i], uuid.NewString()),
			original: raw,
		}
		set.rows = append(set.rows, row)
		set.index[row.display.ID] = row
	}
	return set
}

// toExtracted normalizes one backend metric: canonical ISO date, parsed
// reference range, derived normal/abnormal status.
func toExtracted(raw domain.RawMetric, id string) domain.ExtractedMetric {
	m := domain.ExtractedMetric{
		ID:           id,
		Name:         raw.Name,
		Value:        raw.Value,
		Unit:         raw.Unit,
		ReferenceRaw: raw.ReferenceRange,
		Reference:    domain.ParseRefRange(raw.ReferenceRange),
		Section:      raw.Section,
		DateOfValue:  domain.NormalizeDate(raw.DateOfValue),
		Confidence:   raw.Confidence,
	}
	m.Status = m.DeriveStatus()
	return m
}

func (s *ReviewSet) Len() int {
	return len(s.rows)
}

// Edit applies a user patch to the row with the given ID. The display range
// string is recomputed from edited bounds and the status rederived.
func (s *ReviewSet) Edit(id string, patch domain.MetricPatch) error {
	row, ok := s.index[id]
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "edit metric", fmt.Errorf("unknown metric id %s", id))
	}
	if patch.IsZero() {
		return domain.WrapError(domain.ErrInvalidInput, "edit metric", errors.New("empty patch"))
	}

	if patch.Name != nil {
		row.display.Name = *patch.Name
		row.edits.Name = patch.Name
	}
	if patch.Value != nil {
		row.display.Value = *patch.Value
		row.edits.Value = patch.Value
	}
	if patch.Unit != nil {
		row.display.Unit = *patch.Unit
		row.edits.Unit = patch.Unit
	}
	if patch.Date != nil {
		normalized := domain.NormalizeDate(*patch.Date)
		row.display.DateOfValue = normalized
		row.edits.Date = &normalized
	}
	if patch.Reference != nil {
		row.display.Reference = *patch.Reference
		row.display.ReferenceRaw = patch.Reference.Render()
		row.edits.Reference = patch.Reference
	}
	row.display.Status = row.display.DeriveStatus()
	return nil
}

// Remove drops the row and its original-language counterpart together.
func (s *ReviewSet) Remove(id string) error {
	row, ok := s.index[id]
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "remove metric", fmt.Errorf("unknown metric id %s", id))
	}
	delete(s.index, id)
	for i, r := range s.rows {
		if r == row {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			break
		}
	}
	return nil
}

// ForSubmission merges each surviving row into the bulk-creation shape:
// user-edited fields win, untouched fields come from the original-language
// record so translation never leaks into storage.
func (s *ReviewSet) ForSubmission() []domain.MetricRecord {
	records := make([]domain.MetricRecord, 0, len(s.rows))
	for _, row := range s.rows {
		rec := domain.MetricRecord{
			Section:     row.original.Section,
			Name:        row.original.Name,
			Value:       row.original.Value,
			Unit:        row.original.Unit,
			Reference:   row.original.ReferenceRange,
			DateOfValue: row.display.DateOfValue,
		}
		if row.edits.Name != nil {
			rec.Name = *row.edits.Name
		}
		if row.edits.Value != nil {
			rec.Value = *row.edits.Value
		}
		if row.edits.Unit != nil {
			rec.Unit = *row.edits.Unit
		}
		if row.edits.Reference != nil {
			rec.Reference = row.edits.Reference.Render()
		}
		records = append(records, rec)
	}
	return records
}

// similarityKeys returns the unique section names and (section, metric) pairs
// for the advisory similarity check.
func (s *ReviewSet) similarityKeys() ([]string, []domain.SimilarityKey) {
	seenSections := make(map[string]bool)
	seenPairs := make(map[domain.SimilarityKey]bool)
	var sections []string
	var pairs []domain.SimilarityKey
	for _, row := range s.rows {
		if !seenSections[row.display.Section] {
			seenSections[row.display.Section] = true
			sections = append(sections, row.display.Section)
		}
		key := domain.SimilarityKey{Section: row.display.Section, Metric: row.display.Name}
		if !seenPairs[key] {
			seenPairs[key] = true
			pairs = append(pairs, key)
		}
	}
	return sections, pairs
}

// applySimilarity annotates rows from the classifier report. Annotations are
// advisory and never rewrite metric data.
func (s *ReviewSet) applySimilarity(report *domain.SimilarityReport) {
	if report == nil {
		return
	}
	for _, row := range s.rows {
		key := domain.SimilarityKey{Section: row.display.Section, Metric: row.display.Name}
		if ann, ok := report.Metrics[key]; ok {
			copied := ann
			row.similarity = &copied
		}
	}
}

func (s *ReviewSet) reviewed() []domain.ReviewedMetric {
	out := make([]domain.ReviewedMetric, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, domain.ReviewedMetric{
			ExtractedMetric: row.display,
			Similarity:      row.similarity,
			Edited:          !row.edits.IsZero(),
		})
	}
	return out
}
