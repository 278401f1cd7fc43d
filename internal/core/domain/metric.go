package domain

import "strconv"

type MetricStatus string

const (
	MetricStatusNormal   MetricStatus = "normal"
	MetricStatusAbnormal MetricStatus = "abnormal"
)

type SimilarityStatus string

const (
	SimilarityNew     SimilarityStatus = "NEW"
	SimilarityExist   SimilarityStatus = "EXIST"
	SimilaritySimilar SimilarityStatus = "SIMILAR"
)

// SimilarityAnnotation classifies a candidate metric or section against data
// already stored for the patient. Advisory only: it never blocks confirmation
// or submission.
type SimilarityAnnotation struct {
	Status              SimilarityStatus `json:"status"`
	SimilarityScore     float64          `json:"similarity_score,omitempty"`
	ExistingID          string           `json:"existing_id,omitempty"`
	ExistingDisplayName string           `json:"existing_display_name,omitempty"`
}

// ExtractedMetric is one lab value produced by document analysis. Value keeps
// the original string formatting from the report.
type ExtractedMetric struct {
	ID           string       `json:"id"`
	Name         string       `json:"metric_name"`
	Value        string       `json:"value"`
	Unit         string       `json:"unit"`
	ReferenceRaw string       `json:"reference_range"`
	Reference    RefRange     `json:"reference_parsed"`
	Section      string       `json:"type_of_analysis"`
	DateOfValue  string       `json:"date_of_value"`
	Confidence   float64      `json:"confidence"`
	Status       MetricStatus `json:"status"`
}

// DeriveStatus classifies the value against the parsed range. Non-numeric
// values and open ranges stay normal, matching how the portal renders them.
func (m ExtractedMetric) DeriveStatus() MetricStatus {
	if m.Reference.IsZero() {
		return MetricStatusNormal
	}
	v, err := strconv.ParseFloat(m.Value, 64)
	if err != nil {
		return MetricStatusNormal
	}
	if m.Reference.Contains(v) {
		return MetricStatusNormal
	}
	return MetricStatusAbnormal
}
