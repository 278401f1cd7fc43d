package usecase

import (
	"context"
	"time"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

// labResultsRecordTypeID is the health-record type the portal files lab
// metrics under.
const labResultsRecordTypeID = 1

const similarityCheckTimeout = 30 * time.Second

// runSimilarityCheck asks the backend to classify the freshly extracted
// metrics against stored data and annotates the review set. It is advisory:
// failures are logged and swallowed, and the results are already visible
// before it completes. The call is scoped to the session context so closing
// the session aborts it.
func (i *Intake) runSimilarityCheck(sess *session) {
	sess.mu.Lock()
	if sess.review == nil || sess.review.Len() == 0 {
		sess.mu.Unlock()
		return
	}
	sections, pairs := sess.review.similarityKeys()
	sessionCtx := sess.ctx
	sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(sessionCtx, similarityCheckTimeout)
	defer cancel()

	report, err := i.backend.CheckSimilarity(ctx, domain.SimilarityRequest{
		Sections:           sections,
		Metrics:            pairs,
		HealthRecordTypeID: labResultsRecordTypeID,
	})
	if i.observer != nil {
		i.observer.RecordSimilarityCheck(i.serviceName, err)
	}
	if err != nil {
		i.logger.Warn("similarity_check_failed", "session_id", sess.id, "error", err)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.review == nil {
		return
	}
	sess.review.applySimilarity(report)
	if len(report.Sections) > 0 {
		sess.sectionSim = make(map[string]domain.SimilarityAnnotation, len(report.Sections))
		for name, ann := range report.Sections {
			sess.sectionSim[name] = ann
		}
	}
	sess.updatedAt = time.Now().UTC()
}
