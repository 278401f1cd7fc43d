package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mariankugiel/labintake/internal/core/domain"
	"github.com/mariankugiel/labintake/internal/core/ports"
)

// session is the transient state spanning one document's journey from file
// selection to a saved or abandoned record set. All fields are guarded by mu;
// network calls run outside the lock with busy set so a second trigger is
// rejected instead of queued.
type session struct {
	mu sync.Mutex

	id    string
	state domain.SessionState
	doc   domain.Document

	storageKey         string
	detectedLanguage   string
	userLanguage       string
	translationApplied bool
	ocrUsed            bool

	review     *ReviewSet
	sectionSim map[string]domain.SimilarityAnnotation
	duplicate  *domain.ExistingDocument
	outcome    *domain.SubmissionOutcome
	lastErr    string

	// pending submission payload, cached so a duplicate-continue re-issues
	// the identical request.
	pendingRecords *domain.RecordSubmission
	pendingDocOnly bool

	busy bool

	// ctx scopes all background work for the session and is cancelled on
	// close, so no call outlives its dialog.
	ctx    context.Context
	cancel context.CancelFunc

	createdAt time.Time
	updatedAt time.Time
}

func (s *session) transition(to domain.SessionState) error {
	if !domain.CanTransition(s.state, to) {
		return domain.WrapError(domain.ErrIllegalTransition, "session transition",
			fmt.Errorf("%s -> %s", s.state, to))
	}
	s.state = to
	s.updatedAt = time.Now().UTC()
	return nil
}

func (s *session) snapshot() *domain.SessionSnapshot {
	snap := &domain.SessionSnapshot{
		ID:                 s.id,
		State:              s.state,
		Document:           s.doc,
		DetectedLanguage:   s.detectedLanguage,
		UserLanguage:       s.userLanguage,
		TranslationApplied: s.translationApplied,
		OCRUsed:            s.ocrUsed,
		Duplicate:          s.duplicate,
		Outcome:            s.outcome,
		LastError:          s.lastErr,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
	}
	if s.review != nil {
		snap.Metrics = s.review.reviewed()
	}
	if len(s.sectionSim) > 0 {
		snap.SectionSimilarity = make(map[string]domain.SimilarityAnnotation, len(s.sectionSim))
		for k, v := range s.sectionSim {
			snap.SectionSimilarity[k] = v
		}
	}
	return snap
}

// IntakeObserver receives counters for flow events that only the service can
// see. All hooks are optional.
type IntakeObserver interface {
	RecordOCRRetry(service string)
	RecordSimilarityCheck(service string, err error)
	SetActiveSessions(count int)
	RecordSessionEvicted(service string)
}

// Intake hosts upload sessions and drives the analyze/review/submit flow
// against the portal backend.
type Intake struct {
	backend   ports.AnalysisBackend
	preflight ports.FilePreflight
	storage   ports.ObjectStorage
	events    ports.EventBus
	logger    *slog.Logger

	sessionTTL time.Duration

	observer    IntakeObserver
	serviceName string

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewIntake(
	backend ports.AnalysisBackend,
	preflight ports.FilePreflight,
	storage ports.ObjectStorage,
	events ports.EventBus,
	logger *slog.Logger,
	sessionTTL time.Duration,
) *Intake {
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	return &Intake{
		backend:    backend,
		preflight:  preflight,
		storage:    storage,
		events:     events,
		logger:     logger,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]*session),
	}
}

// WithObserver attaches flow metrics. Sessions created before the call are
// still counted.
func (i *Intake) WithObserver(observer IntakeObserver, service string) *Intake {
	i.observer = observer
	i.serviceName = service
	return i
}

func (i *Intake) observeSessionCount() {
	if i.observer == nil {
		return
	}
	i.mu.RLock()
	count := len(i.sessions)
	i.mu.RUnlock()
	i.observer.SetActiveSessions(count)
}

func (i *Intake) CreateSession(_ context.Context, doc domain.Document) (*domain.SessionSnapshot, error) {
	now := time.Now().UTC()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:        uuid.NewString(),
		state:     domain.StateIdle,
		doc:       doc,
		ctx:       ctx,
		cancel:    cancel,
		createdAt: now,
		updatedAt: now,
	}
	sess.doc.CreatedAt = now
	sess.doc.UpdatedAt = now

	i.mu.Lock()
	i.sessions[sess.id] = sess
	i.mu.Unlock()
	i.observeSessionCount()

	return sess.snapshot(), nil
}

func (i *Intake) GetSession(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	sess, err := i.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}

// AnalyzeFile runs the preflight, uploads the file for extraction, retries
// once through OCR when the backend suggests it, and seeds the review set.
// The similarity check is launched in the background and never blocks or
// fails the results.
func (i *Intake) AnalyzeFile(ctx context.Context, sessionID, filename string, content []byte) (*domain.SessionSnapshot, error) {
	sess, err := i.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	insight, err := i.preflight.Inspect(filename, content)
	if err != nil {
		// Validation errors cause no state change.
		return nil, domain.WrapError(domain.ErrInvalidInput, "file preflight", err)
	}

	sess.mu.Lock()
	if sess.busy {
		sess.mu.Unlock()
		return nil, domain.WrapError(domain.ErrSessionBusy, "analyze file", errors.New("analysis already in flight"))
	}
	if sess.state == domain.StateAnalysisFailed {
		if err := sess.transition(domain.StateFileSelected); err != nil {
			sess.mu.Unlock()
			return nil, err
		}
	}
	if sess.state == domain.StateIdle {
		if err := sess.transition(domain.StateFileSelected); err != nil {
			sess.mu.Unlock()
			return nil, err
		}
	}
	if err := sess.transition(domain.StateAnalyzing); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	sess.busy = true
	sess.doc.FileName = filename
	sess.storageKey = fmt.Sprintf("%s_%s", sess.id, sanitizeFilename(filename))
	storageKey := sess.storageKey
	docMeta := sess.doc
	sess.mu.Unlock()

	defer i.release(sess)

	if err := i.storage.Save(ctx, storageKey, bytes.NewReader(content)); err != nil {
		i.logger.Warn("source_copy_save_failed", "session_id", sessionID, "error", err)
	}

	req := domain.AnalysisRequest{
		FileName: filename,
		Content:  content,
		DocDate:  docMeta.LabTestDate,
		DocType:  docMeta.DocumentType,
		Provider: docMeta.Provider,
		// Scanned documents with no extractable text go straight to OCR.
		UseOCR: !insight.HasText,
	}

	result, err := i.backend.Analyze(ctx, req)
	if err != nil {
		return nil, i.failAnalysis(sess, err)
	}

	// One OCR retry, strictly sequential, never more.
	if result.SuggestOCR && len(result.LabData) == 0 && !req.UseOCR {
		sess.mu.Lock()
		terr := sess.transition(domain.StateOcrRetrying)
		sess.mu.Unlock()
		if terr != nil {
			return nil, terr
		}
		req.UseOCR = true
		if i.observer != nil {
			i.observer.RecordOCRRetry(i.serviceName)
		}
		result, err = i.backend.Analyze(ctx, req)
		if err != nil {
			return nil, i.failAnalysis(sess, err)
		}
	}

	if len(result.LabData) == 0 {
		return nil, i.failAnalysis(sess, errors.New("no extractable lab data"))
	}

	sess.mu.Lock()
	if err := sess.transition(domain.StateAnalysisSucceeded); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	sess.review = newReviewSet(result)
	sess.detectedLanguage = result.DetectedLanguage
	sess.userLanguage = result.UserLanguage
	sess.translationApplied = result.TranslationApplied
	sess.ocrUsed = req.UseOCR
	sess.doc.S3URL = result.S3URL
	sess.doc.DetectedLanguage = result.DetectedLanguage
	if err := sess.transition(domain.StateResultsShown); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	snap := sess.snapshot()
	sess.mu.Unlock()

	go i.runSimilarityCheck(sess)

	return snap, nil
}

func (i *Intake) failAnalysis(sess *session, cause error) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastErr = cause.Error()
	if sess.state == domain.StateAnalyzing || sess.state == domain.StateOcrRetrying {
		if err := sess.transition(domain.StateAnalysisFailed); err != nil {
			return err
		}
	}
	return domain.WrapError(domain.ErrAnalysisFailed, "analyze document", cause)
}

func (i *Intake) EditMetric(_ context.Context, sessionID, metricID string, patch domain.MetricPatch) (*domain.SessionSnapshot, error) {
	return i.withReview(sessionID, "edit metric", func(sess *session) error {
		return sess.review.Edit(metricID, patch)
	})
}

func (i *Intake) RemoveMetric(_ context.Context, sessionID, metricID string) (*domain.SessionSnapshot, error) {
	return i.withReview(sessionID, "remove metric", func(sess *session) error {
		return sess.review.Remove(metricID)
	})
}

func (i *Intake) Confirm(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	return i.decide(sessionID, domain.StateConfirmed)
}

// Reject clears the review set; the document will be saved standalone with no
// derived records.
func (i *Intake) Reject(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	return i.decide(sessionID, domain.StateRejected)
}

func (i *Intake) decide(sessionID string, decision domain.SessionState) (*domain.SessionSnapshot, error) {
	sess, err := i.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.busy {
		return nil, domain.WrapError(domain.ErrSessionBusy, "review decision", errors.New("call in flight"))
	}
	if err := sess.transition(decision); err != nil {
		return nil, err
	}
	if decision == domain.StateRejected {
		sess.review = nil
	}
	// A changed decision invalidates any cached submission payload.
	sess.pendingRecords = nil
	sess.pendingDocOnly = false
	return sess.snapshot(), nil
}

// Submit sends the reviewed session to the backend: bulk creation when
// results were confirmed, metadata-only document creation when rejected. A
// duplicate response suspends the flow; Submit with continueDuplicate re-issues
// the identical cached payload exactly once.
func (i *Intake) Submit(ctx context.Context, sessionID string, continueDuplicate bool) (*domain.SessionSnapshot, error) {
	sess, err := i.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.busy {
		sess.mu.Unlock()
		return nil, domain.WrapError(domain.ErrSessionBusy, "submit", errors.New("submission already in flight"))
	}
	if continueDuplicate && sess.state != domain.StateDuplicateDetected {
		sess.mu.Unlock()
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit", errors.New("no duplicate pending"))
	}
	if err := sess.transition(domain.StateSubmitting); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if sess.pendingRecords == nil && !sess.pendingDocOnly {
		if sess.review != nil && sess.review.Len() > 0 {
			sub := domain.RecordSubmission{
				Records:          sess.review.ForSubmission(),
				FileName:         sess.doc.FileName,
				Description:      sess.doc.Description,
				S3URL:            sess.doc.S3URL,
				LabTestDate:      sess.doc.LabTestDate,
				Provider:         sess.doc.Provider,
				DocumentType:     sess.doc.DocumentType,
				DetectedLanguage: sess.detectedLanguage,
			}
			sess.pendingRecords = &sub
		} else {
			sess.pendingDocOnly = true
		}
	}
	pendingRecords := sess.pendingRecords
	docMeta := sess.doc
	sess.busy = true
	sess.mu.Unlock()

	defer i.release(sess)

	var result *domain.SubmissionResult
	if pendingRecords != nil {
		result, err = i.backend.CreateRecords(ctx, *pendingRecords)
	} else {
		result, err = i.backend.CreateDocument(ctx, docMeta)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err != nil {
		sess.lastErr = err.Error()
		if terr := sess.transition(domain.StateSubmitFailed); terr != nil {
			return nil, terr
		}
		return nil, err
	}

	if result.Duplicate != nil {
		sess.duplicate = result.Duplicate
		if terr := sess.transition(domain.StateDuplicateDetected); terr != nil {
			return nil, terr
		}
		return sess.snapshot(), domain.WrapError(domain.ErrDuplicateDocument, "submit",
			fmt.Errorf("collides with document %s", result.Duplicate.ID))
	}

	sess.outcome = result.Outcome
	sess.duplicate = nil
	sess.lastErr = ""
	if result.Outcome != nil {
		sess.doc.ID = result.Outcome.MedicalDocumentID
	}
	if terr := sess.transition(domain.StateSaved); terr != nil {
		return nil, terr
	}

	i.publishSaved(sess, pendingRecords == nil)

	// Transient review state is done; the snapshot keeps the outcome.
	sess.pendingRecords = nil
	sess.pendingDocOnly = false
	sess.cancel()

	return sess.snapshot(), nil
}

// publishSaved is best effort: the save already happened, losing an audit
// event must not fail it. Called with sess.mu held.
func (i *Intake) publishSaved(sess *session, rejected bool) {
	if i.events == nil {
		return
	}
	event := domain.SessionSavedEvent{
		SessionID:        sess.id,
		DocumentID:       sess.doc.ID,
		FileName:         sess.doc.FileName,
		DetectedLanguage: sess.detectedLanguage,
		Rejected:         rejected,
		OCRUsed:          sess.ocrUsed,
		SavedAt:          time.Now().UTC(),
	}
	if sess.outcome != nil {
		event.CreatedRecords = sess.outcome.CreatedRecords
		event.UpdatedRecords = len(sess.outcome.UpdatedRecords)
	}
	publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.events.PublishSessionSaved(publishCtx, event); err != nil {
		i.logger.Warn("session_saved_event_publish_failed", "session_id", sess.id, "error", err)
	}
}

// Close cancels outstanding background work and discards the session. The
// retained source copy is deleted unless the session was saved.
func (i *Intake) Close(ctx context.Context, sessionID string) error {
	sess, err := i.lookup(sessionID)
	if err != nil {
		return err
	}

	i.mu.Lock()
	delete(i.sessions, sessionID)
	i.mu.Unlock()
	i.observeSessionCount()

	sess.mu.Lock()
	sess.cancel()
	saved := sess.state == domain.StateSaved
	storageKey := sess.storageKey
	sess.mu.Unlock()

	if !saved && storageKey != "" {
		if err := i.storage.Delete(ctx, storageKey); err != nil {
			i.logger.Warn("source_copy_delete_failed", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// StartJanitor evicts sessions idle past the TTL until ctx is cancelled.
func (i *Intake) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i.evictExpired(ctx)
			}
		}
	}()
}

func (i *Intake) evictExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-i.sessionTTL)

	i.mu.Lock()
	var expired []*session
	for id, sess := range i.sessions {
		sess.mu.Lock()
		stale := sess.updatedAt.Before(cutoff) && !sess.busy
		sess.mu.Unlock()
		if stale {
			expired = append(expired, sess)
			delete(i.sessions, id)
		}
	}
	i.mu.Unlock()

	for _, sess := range expired {
		sess.mu.Lock()
		sess.cancel()
		storageKey := sess.storageKey
		state := sess.state
		sess.mu.Unlock()

		if storageKey != "" && state != domain.StateSaved {
			if err := i.storage.Delete(ctx, storageKey); err != nil {
				i.logger.Warn("source_copy_delete_failed", "session_id", sess.id, "error", err)
			}
		}
		if i.observer != nil {
			i.observer.RecordSessionEvicted(i.serviceName)
		}
		i.logger.Info("session_expired", "session_id", sess.id, "state", string(state))
	}
	if len(expired) > 0 {
		i.observeSessionCount()
	}
}

// CancelDuplicate aborts a pending duplicate branch and returns the session
// to the state it submitted from, keeping the reviewed results intact.
func (i *Intake) CancelDuplicate(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	sess, err := i.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != domain.StateDuplicateDetected {
		return nil, domain.WrapError(domain.ErrInvalidInput, "cancel duplicate", errors.New("no duplicate pending"))
	}

	back := domain.StateResultsShown
	switch {
	case sess.pendingDocOnly:
		back = domain.StateRejected
	case sess.pendingRecords != nil:
		back = domain.StateConfirmed
	}
	if err := sess.transition(back); err != nil {
		return nil, err
	}
	sess.duplicate = nil
	return sess.snapshot(), nil
}

func (i *Intake) lookup(sessionID string) (*session, error) {
	i.mu.RLock()
	sess, ok := i.sessions[sessionID]
	i.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", fmt.Errorf("id %s", sessionID))
	}
	return sess, nil
}

func (i *Intake) release(sess *session) {
	sess.mu.Lock()
	sess.busy = false
	sess.mu.Unlock()
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.pdf"
	}
	return base
}

func (i *Intake) withReview(sessionID, operation string, fn func(*session) error) (*domain.SessionSnapshot, error) {
	sess, err := i.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.busy {
		return nil, domain.WrapError(domain.ErrSessionBusy, operation, errors.New("call in flight"))
	}
	if sess.review == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, operation, errors.New("no results to review"))
	}
	if sess.state != domain.StateResultsShown && sess.state != domain.StateConfirmed {
		return nil, domain.WrapError(domain.ErrIllegalTransition, operation,
			fmt.Errorf("state %s does not allow review edits", sess.state))
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.updatedAt = time.Now().UTC()
	return sess.snapshot(), nil
}
