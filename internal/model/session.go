package model

// Phase is the participation state of a session
type Phase string

const (
	PhaseAwaitingConsent Phase = "awaiting_consent"
	PhaseTextDisplay     Phase = "text_display"  // page 1: text plus background block
	PhaseQuestionnaire   Phase = "questionnaire" // page 2: per-text ratings
	PhaseCompleted       Phase = "completed"
)

// BatchActive reports whether the phase is inside the per-text loop
func (p Phase) BatchActive() bool {
	return p == PhaseTextDisplay || p == PhaseQuestionnaire
}

// Session is one tab's participation attempt
type Session struct {
	TabID             string      `json:"tabId"`
	ParticipantCode   string      `json:"participantCode"`
	ConsentGiven      bool        `json:"consentGiven"`
	CompletedCount    int         `json:"completedCount"`
	TargetCount       int         `json:"targetCount"`
	CurrentAssignment *Assignment `json:"currentAssignment,omitempty"`
	Background        *Background `json:"background,omitempty"`
	Phase             Phase       `json:"phase"`
	Answers           TextAnswers `json:"answers"`
	PurposeVisible    bool        `json:"purposeVisible"`
}

// Checkpoint is the persisted subset of a session
type Checkpoint struct {
	ParticipantCode   string
	ConsentGiven      bool
	CompletedCount    int
	CurrentAssignment *Assignment
	Background        *Background
}

// Progress is "text Current of Target"
type Progress struct {
	Completed int `json:"completed"`
	Current   int `json:"current"`
	Target    int `json:"target"`
}

// SessionView is the render snapshot handed to presentation adapters
type SessionView struct {
	TabID              string      `json:"tabId"`
	Phase              Phase       `json:"phase"`
	Page               int         `json:"page,omitempty"`
	ParticipantCode    string      `json:"participantCode,omitempty"`
	Progress           Progress    `json:"progress"`
	Loading            bool        `json:"loading"`
	Busy               bool        `json:"busy"`
	Assignment         *Assignment `json:"assignment,omitempty"`
	Text               *ParsedText `json:"text,omitempty"`
	BackgroundCaptured bool        `json:"backgroundCaptured"`
	Background         *Background `json:"background,omitempty"`
	Answers            TextAnswers `json:"answers"`
	PurposeVisible     bool        `json:"purposeVisible"`
	Error              string      `json:"error,omitempty"`
	ErrorKind          string      `json:"errorKind,omitempty"`
}
