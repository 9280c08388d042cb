package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"readingsurvey/internal/logger"
	"readingsurvey/internal/model"
	"readingsurvey/internal/textparse"
)

// CatalogSource resolves assignment text ids
type CatalogSource interface {
	Wait(ctx context.Context) (*model.Catalog, error)
	Current() *model.Catalog
}

// SessionMachine sequences one tab's participation: consent, then a batch of
// (text, background, questionnaire, submit) rounds, then completion.
//
// At most one transition that touches the network runs at a time; any other
// transition started meanwhile fails with model.ErrTransitionInFlight.
// Snapshots may be taken at any time.
type SessionMachine struct {
	mu      sync.Mutex
	session model.Session
	busy    bool
	loading bool
	lastErr error

	settings model.SurveySettings
	catalog  CatalogSource
	alloc    Allocator
	cp       *Checkpointer
	log      *logger.Logger

	onChange func(model.SessionView)
}

// NewSessionMachine creates a machine in the awaiting-consent phase. Call
// Start to restore any checkpoint.
func NewSessionMachine(tabID string, settings model.SurveySettings, catalog CatalogSource, alloc Allocator, cp *Checkpointer, log *logger.Logger) *SessionMachine {
	return &SessionMachine{
		session: model.Session{
			TabID:       tabID,
			TargetCount: settings.TargetCount,
			Phase:       model.PhaseAwaitingConsent,
		},
		settings: settings,
		catalog:  catalog,
		alloc:    alloc,
		cp:       cp,
		log:      log.With("tab_id", tabID),
	}
}

// OnChange registers fn to receive a snapshot after every state change
func (m *SessionMachine) OnChange(fn func(model.SessionView)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Session returns a copy of the current session
func (m *SessionMachine) Session() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	if s.CurrentAssignment != nil {
		a := *s.CurrentAssignment
		s.CurrentAssignment = &a
	}
	if s.Background != nil {
		b := *s.Background
		s.Background = &b
	}
	return s
}

// Start restores the checkpoint. A consented, unfinished batch without a
// stored assignment requests one; a stored assignment is shown as is.
func (m *SessionMachine) Start(ctx context.Context) error {
	cp, err := m.cp.Restore(ctx)
	if err != nil {
		m.log.Warn("session restore failed, starting fresh", "error", err)
	}
	if cp == nil && err == nil {
		// nothing stored, or something corrupt: begin from a clean slate
		m.persist(ctx, "clear", m.cp.Clear)
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	m.apply(cp)
	needsFetch := m.session.Phase == model.PhaseTextDisplay && m.session.CurrentAssignment == nil
	hasText := m.session.Phase.BatchActive() && m.session.CurrentAssignment != nil
	code := m.session.ParticipantCode
	if needsFetch {
		m.busy = true
		m.loading = true
	}
	m.mu.Unlock()

	if needsFetch {
		m.changed()
		return m.fetchAssignment(ctx, code)
	}
	if hasText {
		if _, err := m.DisplayText(ctx); err != nil {
			m.mu.Lock()
			m.lastErr = err
			m.mu.Unlock()
			m.changed()
			return err
		}
	}
	m.changed()
	return nil
}

func (m *SessionMachine) apply(cp *model.Checkpoint) {
	s := &m.session
	s.Phase = model.PhaseAwaitingConsent
	if cp == nil {
		return
	}
	s.ParticipantCode = cp.ParticipantCode
	s.CompletedCount = cp.CompletedCount
	s.CurrentAssignment = cp.CurrentAssignment
	if !cp.ConsentGiven {
		return
	}
	s.ConsentGiven = true
	s.Background = cp.Background
	if s.CompletedCount >= s.TargetCount {
		s.Phase = model.PhaseCompleted
		s.CurrentAssignment = nil
		return
	}
	s.Phase = model.PhaseTextDisplay
	m.log.Info("session resumed", "completed", s.CompletedCount, "target", s.TargetCount, "has_assignment", s.CurrentAssignment != nil)
}

// Prefetch requests an assignment before consent is given
func (m *SessionMachine) Prefetch(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseAwaitingConsent || m.session.CurrentAssignment != nil {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}
	m.busy = true
	m.loading = true
	code := m.session.ParticipantCode
	m.mu.Unlock()

	m.changed()
	return m.fetchAssignment(ctx, code)
}

// SubmitConsent validates the consent form and enters the batch. A pending
// assignment is displayed without fetching; otherwise one is requested and
// consent only takes effect once it arrives.
func (m *SessionMachine) SubmitConsent(ctx context.Context, in model.ConsentInput) error {
	code := strings.TrimSpace(in.ParticipantCode)

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseAwaitingConsent {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}
	if err := m.validateConsent(code, in.Affirmations); err != nil {
		m.mu.Unlock()
		return err
	}

	if m.session.CurrentAssignment != nil {
		m.enterBatch(ctx, code)
		m.mu.Unlock()
		m.changed()
		return nil
	}

	m.busy = true
	m.loading = true
	m.mu.Unlock()
	m.changed()

	a, err := m.alloc.RequestAssignment(ctx, code)

	m.mu.Lock()
	m.busy = false
	m.loading = false
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		m.log.Warn("assignment failed at consent", "participant_code", code, "error", err)
		m.changed()
		return err
	}
	m.session.CurrentAssignment = a
	m.persist(ctx, KeyAssignedText, func(ctx context.Context) error { return m.cp.SaveAssignment(ctx, a) })
	m.enterBatch(ctx, code)
	m.mu.Unlock()

	m.changed()
	return nil
}

func (m *SessionMachine) validateConsent(code string, affirmations map[string]bool) error {
	if len([]rune(code)) < m.settings.MinCodeLength {
		return &model.ValidationError{
			Message: "please enter an anonymous participant code of at least " + strconv.Itoa(m.settings.MinCodeLength) + " characters",
			Fields:  []string{"participant_code"},
		}
	}
	var missing []string
	for _, key := range m.settings.RequiredAffirmations {
		if !affirmations[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &model.ValidationError{Message: "please confirm all consent items", Fields: missing}
	}
	return nil
}

// enterBatch commits consent; caller holds mu
func (m *SessionMachine) enterBatch(ctx context.Context, code string) {
	s := &m.session
	s.ParticipantCode = code
	s.ConsentGiven = true
	s.CompletedCount = 0
	s.Background = nil
	s.Answers = model.TextAnswers{}
	s.PurposeVisible = false
	s.Phase = model.PhaseTextDisplay
	m.lastErr = nil

	m.persist(ctx, KeyParticipantCode, func(ctx context.Context) error { return m.cp.SaveParticipantCode(ctx, code) })
	m.persist(ctx, KeyConsentGiven, func(ctx context.Context) error { return m.cp.SaveConsent(ctx, true) })
	m.persist(ctx, KeyCompletedCount, func(ctx context.Context) error { return m.cp.SaveCompletedCount(ctx, 0) })
	m.persist(ctx, KeyBackground, func(ctx context.Context) error { return m.cp.SaveBackground(ctx, nil) })
	m.log.Info("consent given", "participant_code", code)
}

// SubmitBackground moves from the text page to the questionnaire page. The
// background block is validated and captured only the first time in a batch.
func (m *SessionMachine) SubmitBackground(ctx context.Context, in model.BackgroundInput) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseTextDisplay || m.session.CurrentAssignment == nil {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}

	if m.session.Background == nil {
		b, err := m.validateBackground(in.Background)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.session.Background = b
		m.persist(ctx, KeyBackground, func(ctx context.Context) error { return m.cp.SaveBackground(ctx, b) })
	}

	m.session.Phase = model.PhaseQuestionnaire
	m.session.PurposeVisible = m.settings.PurposeRequired(m.session.Answers)
	m.lastErr = nil
	m.mu.Unlock()

	m.changed()
	return nil
}

func (m *SessionMachine) validateBackground(in *model.Background) (*model.Background, error) {
	var src model.Background
	if in != nil {
		src = *in
	}
	var missing []string
	for _, f := range m.settings.BackgroundFields {
		if src.Value(f) == "" {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, &model.ValidationError{Message: "please answer all background questions", Fields: missing}
	}
	return &model.Background{
		Gender:          src.Value(model.BackgroundGender),
		Age:             src.Value(model.BackgroundAge),
		Education:       src.Value(model.BackgroundEducation),
		SocialMediaTime: src.Value(model.BackgroundSocialMediaTime),
		Country:         src.Value(model.BackgroundCountry),
	}, nil
}

// BackToText returns from the questionnaire page to the text page
func (m *SessionMachine) BackToText(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseQuestionnaire {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}
	m.session.Phase = model.PhaseTextDisplay
	m.mu.Unlock()

	m.changed()
	return nil
}

// UpdateAnswers replaces the questionnaire draft and re-evaluates whether the
// purpose follow-up is shown. Hiding it discards its text.
func (m *SessionMachine) UpdateAnswers(ctx context.Context, a model.TextAnswers) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseQuestionnaire {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}
	if err := m.checkRange(a); err != nil {
		m.mu.Unlock()
		return err
	}
	m.setAnswers(a)
	m.mu.Unlock()

	m.changed()
	return nil
}

func (m *SessionMachine) setAnswers(a model.TextAnswers) {
	m.session.PurposeVisible = m.settings.PurposeRequired(a)
	if !m.session.PurposeVisible {
		a.Purpose = ""
	}
	m.session.Answers = a
}

// PurposeRequired reports whether a trips the follow-up gate
func (m *SessionMachine) PurposeRequired(a model.TextAnswers) bool {
	return m.settings.PurposeRequired(a)
}

func (m *SessionMachine) checkRange(a model.TextAnswers) error {
	if bad := m.settings.OutOfRange(a); len(bad) > 0 {
		return &model.ValidationError{
			Message: "ratings must be between 1 and " + strconv.Itoa(m.settings.RatingMax),
			Fields:  bad,
		}
	}
	return nil
}

func (m *SessionMachine) validateAnswers(a model.TextAnswers) error {
	var missing []string
	for _, f := range m.settings.RequiredRatings {
		if !a.Ratings.Value(f).Answered() {
			missing = append(missing, string(f))
		}
	}
	if m.settings.PurposeRequired(a) && strings.TrimSpace(a.Purpose) == "" {
		missing = append(missing, "purpose")
	}
	if len(missing) > 0 {
		return &model.ValidationError{Message: "please answer all required questions", Fields: missing}
	}
	return nil
}

// SubmitQuestionnaire validates and submits the answers for the current text
func (m *SessionMachine) SubmitQuestionnaire(ctx context.Context, a model.TextAnswers) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseQuestionnaire || m.session.CurrentAssignment == nil {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}
	if err := m.checkRange(a); err != nil {
		m.mu.Unlock()
		return err
	}
	m.setAnswers(a)
	if err := m.validateAnswers(m.session.Answers); err != nil {
		m.mu.Unlock()
		return err
	}

	asg := *m.session.CurrentAssignment
	payload := model.QuestionnaireResponse{
		ParticipantCode: m.session.ParticipantCode,
		AllocationID:    asg.AllocationID,
		TextID:          asg.TextID,
		Topic:           asg.Topic,
		Background:      m.background(),
		Ratings:         m.session.Answers.Ratings,
		Purpose:         strings.TrimSpace(m.session.Answers.Purpose),
	}
	m.busy = true
	m.mu.Unlock()
	m.changed()

	_, err := m.alloc.Submit(ctx, payload)
	return m.finishUnit(ctx, asg, "answered", err)
}

// RequestSkip reports the current text as undisplayable instead of answering
func (m *SessionMachine) RequestSkip(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseQuestionnaire || m.session.CurrentAssignment == nil {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}
	if reason == "" {
		m.mu.Unlock()
		return &model.ValidationError{Message: "please describe the problem with this text", Fields: []string{"skip_reason_detail"}}
	}

	asg := *m.session.CurrentAssignment
	payload := model.SkipReport{
		ParticipantCode:          m.session.ParticipantCode,
		AllocationID:             asg.AllocationID,
		TextID:                   asg.TextID,
		Topic:                    asg.Topic,
		Background:               m.background(),
		SkippedDueToDisplayIssue: model.SkipFlagValue,
		SkipReason:               model.SkipReasonDisplay,
		SkipReasonDetail:         reason,
	}
	m.busy = true
	m.mu.Unlock()
	m.changed()

	_, err := m.alloc.Submit(ctx, payload)
	return m.finishUnit(ctx, asg, "skipped", err)
}

// background returns the captured block; caller holds mu
func (m *SessionMachine) background() model.Background {
	if m.session.Background == nil {
		return model.Background{}
	}
	return *m.session.Background
}

// finishUnit applies the outcome of a submit. On success the text counts as
// done and, unless the batch is complete, the next assignment is requested
// before the machine accepts another transition. A failed follow-up fetch is
// left in the view for RetryAssignment and does not fail the submission.
func (m *SessionMachine) finishUnit(ctx context.Context, asg model.Assignment, outcome string, submitErr error) error {
	m.mu.Lock()
	if submitErr != nil {
		m.busy = false
		m.lastErr = submitErr
		m.mu.Unlock()
		m.log.Warn("submission failed", "text_id", asg.TextID, "outcome", outcome, "error", submitErr)
		m.changed()
		return submitErr
	}

	s := &m.session
	s.CompletedCount++
	s.CurrentAssignment = nil
	s.Answers = model.TextAnswers{}
	s.PurposeVisible = false
	m.lastErr = nil
	count := s.CompletedCount
	m.persist(ctx, KeyCompletedCount, func(ctx context.Context) error { return m.cp.SaveCompletedCount(ctx, count) })
	m.persist(ctx, KeyAssignedText, func(ctx context.Context) error { return m.cp.SaveAssignment(ctx, nil) })
	m.log.Info("text completed", "text_id", asg.TextID, "outcome", outcome, "completed", count, "target", s.TargetCount)

	code := s.ParticipantCode
	if count >= s.TargetCount {
		s.Phase = model.PhaseCompleted
		m.busy = false
		m.mu.Unlock()
		m.log.Info("batch completed", "participant_code", code)
		m.changed()
		return nil
	}

	s.Phase = model.PhaseTextDisplay
	m.loading = true
	m.mu.Unlock()
	m.changed()

	_ = m.fetchAssignment(ctx, code)
	return nil
}

// RetryAssignment re-requests an assignment after a failed fetch
func (m *SessionMachine) RetryAssignment(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseTextDisplay || m.session.CurrentAssignment != nil {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}
	m.busy = true
	m.loading = true
	code := m.session.ParticipantCode
	m.mu.Unlock()

	m.changed()
	return m.fetchAssignment(ctx, code)
}

// fetchAssignment runs with busy already set and mu released
func (m *SessionMachine) fetchAssignment(ctx context.Context, code string) error {
	a, err := m.alloc.RequestAssignment(ctx, code)

	m.mu.Lock()
	m.busy = false
	m.loading = false
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		m.log.Warn("assignment failed", "participant_code", code, "error", err)
		m.changed()
		return err
	}
	m.session.CurrentAssignment = a
	m.lastErr = nil
	m.persist(ctx, KeyAssignedText, func(ctx context.Context) error { return m.cp.SaveAssignment(ctx, a) })
	m.mu.Unlock()

	m.changed()
	return nil
}

// Restart leaves the completed phase for a new batch. The participant code
// is kept.
func (m *SessionMachine) Restart(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return model.ErrTransitionInFlight
	}
	if m.session.Phase != model.PhaseCompleted {
		m.mu.Unlock()
		return model.ErrInvalidTransition
	}

	s := &m.session
	s.CompletedCount = 0
	s.CurrentAssignment = nil
	s.ConsentGiven = false
	s.Background = nil
	s.Answers = model.TextAnswers{}
	s.PurposeVisible = false
	s.Phase = model.PhaseAwaitingConsent
	m.lastErr = nil

	m.persist(ctx, KeyCompletedCount, func(ctx context.Context) error { return m.cp.SaveCompletedCount(ctx, 0) })
	m.persist(ctx, KeyAssignedText, func(ctx context.Context) error { return m.cp.SaveAssignment(ctx, nil) })
	m.persist(ctx, KeyConsentGiven, func(ctx context.Context) error { return m.cp.SaveConsent(ctx, false) })
	m.persist(ctx, KeyBackground, func(ctx context.Context) error { return m.cp.SaveBackground(ctx, nil) })
	m.mu.Unlock()

	m.log.Info("session restarted")
	m.changed()
	return nil
}

// DisplayText resolves the current assignment against the catalog, waiting
// for the catalog to finish loading.
func (m *SessionMachine) DisplayText(ctx context.Context) (model.ParsedText, error) {
	m.mu.Lock()
	var textID string
	if m.session.CurrentAssignment != nil {
		textID = m.session.CurrentAssignment.TextID
	}
	m.mu.Unlock()
	if textID == "" {
		return model.ParsedText{}, model.ErrInvalidTransition
	}

	cat, err := m.catalog.Wait(ctx)
	if err != nil {
		return model.ParsedText{}, err
	}
	entry, ok := cat.Lookup(textID)
	if !ok {
		m.log.Error("assigned text missing from catalog", "text_id", textID, "catalog_size", cat.Len())
		return model.ParsedText{}, &model.AssignmentNotFoundError{TextID: textID}
	}
	return textparse.Parse(entry.Text), nil
}

// View waits for the catalog when a text is due on screen, then snapshots
func (m *SessionMachine) View(ctx context.Context) model.SessionView {
	m.mu.Lock()
	needsText := m.session.Phase.BatchActive() && m.session.CurrentAssignment != nil
	m.mu.Unlock()
	if needsText {
		_, _ = m.catalog.Wait(ctx)
	}
	return m.Snapshot()
}

// Snapshot renders the current state without blocking
func (m *SessionMachine) Snapshot() model.SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	v := model.SessionView{
		TabID:              s.TabID,
		Phase:              s.Phase,
		ParticipantCode:    s.ParticipantCode,
		Busy:               m.busy,
		Loading:            m.loading,
		BackgroundCaptured: s.Background != nil,
		Answers:            s.Answers,
		PurposeVisible:     s.PurposeVisible,
		Progress: model.Progress{
			Completed: s.CompletedCount,
			Target:    s.TargetCount,
		},
	}
	if s.Background != nil {
		b := *s.Background
		v.Background = &b
	}

	switch s.Phase {
	case model.PhaseTextDisplay:
		v.Page = 1
	case model.PhaseQuestionnaire:
		v.Page = 2
	}
	switch {
	case s.Phase == model.PhaseCompleted:
		v.Progress.Current = s.TargetCount
	case s.Phase.BatchActive():
		v.Progress.Current = s.CompletedCount + 1
	}

	err := m.lastErr
	if s.Phase.BatchActive() && s.CurrentAssignment != nil {
		a := *s.CurrentAssignment
		v.Assignment = &a
		if cat := m.catalog.Current(); cat == nil {
			v.Loading = true
		} else if entry, ok := cat.Lookup(a.TextID); ok {
			parsed := textparse.Parse(entry.Text)
			v.Text = &parsed
		} else if err == nil {
			err = &model.AssignmentNotFoundError{TextID: a.TextID}
		}
	}
	if err != nil {
		v.Error = err.Error()
		v.ErrorKind = model.ErrorKind(err)
	}
	return v
}

func (m *SessionMachine) inFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// persist writes one checkpoint value; failures are logged, never fatal
func (m *SessionMachine) persist(ctx context.Context, key string, save func(ctx context.Context) error) {
	if err := save(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.log.Warn("session checkpoint failed", "key", key, "error", err)
	}
}

func (m *SessionMachine) changed() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(m.Snapshot())
	}
}
