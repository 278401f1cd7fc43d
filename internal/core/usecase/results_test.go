package usecase

import (
	"testing"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

func strptr(s string) *string { return &s }

func fptr(v float64) *float64 { return &v }

func sampleResult() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		LabData: []domain.RawMetric{
			{Name: "Glucosa", Value: "92", Unit: "mg/dL", ReferenceRange: "70 - 100", Section: "Bioquimica", DateOfValue: "10-01-2024"},
			{Name: "Creatinina", Value: "1.3", Unit: "mg/dL", ReferenceRange: "<=1.2", Section: "Bioquimica", DateOfValue: "2024-01-10"},
		},
		TranslatedData: []domain.RawMetric{
			{Name: "Glucose", Value: "92", Unit: "mg/dL", ReferenceRange: "70 - 100", Section: "Biochemistry", DateOfValue: "10-01-2024"},
			{Name: "Creatinine", Value: "1.3", Unit: "mg/dL", ReferenceRange: "<=1.2", Section: "Biochemistry", DateOfValue: "2024-01-10"},
		},
		TranslationApplied: true,
	}
}

func TestNewReviewSetSeedsNormalizedDisplayRows(t *testing.T) {
	set := newReviewSet(sampleResult())
	if set.Len() != 2 {
		t.Fatalf("Len() = %d", set.Len())
	}
	rows := set.reviewed()
	if rows[0].Name != "Glucose" {
		t.Fatalf("display should use translated copy, got %q", rows[0].Name)
	}
	if rows[0].DateOfValue != "2024-01-10" {
		t.Fatalf("date not normalized: %q", rows[0].DateOfValue)
	}
	if rows[0].ID == "" || rows[0].ID == rows[1].ID {
		t.Fatalf("rows need distinct stable ids")
	}
	if rows[1].Status != domain.MetricStatusAbnormal {
		t.Fatalf("1.3 against <=1.2 should be abnormal")
	}
}

func TestNewReviewSetFallsBackWhenTranslationLengthMismatches(t *testing.T) {
	result := sampleResult()
	result.TranslatedData = result.TranslatedData[:1]
	set := newReviewSet(result)
	if got := set.reviewed()[0].Name; got != "Glucosa" {
		t.Fatalf("mismatched translation must fall back to originals, got %q", got)
	}
}

func TestEditRecomputesRangeAndStatus(t *testing.T) {
	set := newReviewSet(sampleResult())
	id := set.reviewed()[0].ID

	err := set.Edit(id, domain.MetricPatch{
		Value:     strptr("105"),
		Reference: &domain.RefRange{Min: fptr(70), Max: fptr(100)},
	})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	row := set.reviewed()[0]
	if row.Value != "105" || !row.Edited {
		t.Fatalf("edit not applied: %+v", row)
	}
	if row.ReferenceRaw != "70.00 - 100.00" {
		t.Fatalf("display range not recomputed: %q", row.ReferenceRaw)
	}
	if row.Status != domain.MetricStatusAbnormal {
		t.Fatalf("status not rederived after edit")
	}
}

func TestEditNormalizesPatchedDate(t *testing.T) {
	set := newReviewSet(sampleResult())
	id := set.reviewed()[0].ID
	if err := set.Edit(id, domain.MetricPatch{Date: strptr("05-02-2024")}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if got := set.reviewed()[0].DateOfValue; got != "2024-02-05" {
		t.Fatalf("patched date not normalized: %q", got)
	}
}

func TestEditRejectsUnknownIDAndEmptyPatch(t *testing.T) {
	set := newReviewSet(sampleResult())
	if err := set.Edit("nope", domain.MetricPatch{Value: strptr("1")}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown id, got %v", err)
	}
	id := set.reviewed()[0].ID
	if err := set.Edit(id, domain.MetricPatch{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty patch, got %v", err)
	}
}

func TestRemoveKeepsRemainingMappingIntact(t *testing.T) {
	set := newReviewSet(sampleResult())
	rows := set.reviewed()
	if err := set.Remove(rows[0].ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := set.Remove(rows[0].ID); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("double remove should fail, got %v", err)
	}

	records := set.ForSubmission()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	// The survivor still maps to its own original-language record.
	if records[0].Name != "Creatinina" {
		t.Fatalf("survivor mapped to wrong original: %+v", records[0])
	}
}

func TestForSubmissionMergesEditsOntoOriginals(t *testing.T) {
	set := newReviewSet(sampleResult())
	id := set.reviewed()[0].ID
	if err := set.Edit(id, domain.MetricPatch{Value: strptr("95"), Name: strptr("Fasting glucose")}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	rec := set.ForSubmission()[0]
	if rec.Value != "95" {
		t.Fatalf("edited value must win, got %q", rec.Value)
	}
	if rec.Name != "Fasting glucose" {
		t.Fatalf("edited name must win, got %q", rec.Name)
	}
	if rec.Section != "Bioquimica" || rec.Unit != "mg/dL" || rec.Reference != "70 - 100" {
		t.Fatalf("untouched fields must come from the original language: %+v", rec)
	}
}

func TestSimilarityKeysDeduplicated(t *testing.T) {
	result := sampleResult()
	result.LabData = append(result.LabData, result.LabData[0])
	result.TranslatedData = append(result.TranslatedData, result.TranslatedData[0])
	set := newReviewSet(result)

	sections, pairs := set.similarityKeys()
	if len(sections) != 1 {
		t.Fatalf("sections = %v", sections)
	}
	if len(pairs) != 2 {
		t.Fatalf("pairs = %v", pairs)
	}
}

func TestApplySimilarityAnnotatesMatchingRows(t *testing.T) {
	set := newReviewSet(sampleResult())
	set.applySimilarity(&domain.SimilarityReport{
		Metrics: map[domain.SimilarityKey]domain.SimilarityAnnotation{
			{Section: "Biochemistry", Metric: "Glucose"}: {Status: domain.SimilarityExist, ExistingID: "m-1"},
		},
	})

	rows := set.reviewed()
	if rows[0].Similarity == nil || rows[0].Similarity.Status != domain.SimilarityExist {
		t.Fatalf("annotation missing: %+v", rows[0].Similarity)
	}
	if rows[1].Similarity != nil {
		t.Fatalf("unmatched row must stay unannotated")
	}
}
