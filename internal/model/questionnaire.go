package model

import "strings"

// ConsentInput is the consent form as submitted
type ConsentInput struct {
	ParticipantCode string          `json:"participant_code"`
	Affirmations    map[string]bool `json:"affirmations"`
}

// Background is the demographic block reused across a batch
type Background struct {
	Gender          string `json:"gender"`
	Age             string `json:"age"`
	Education       string `json:"education"`
	SocialMediaTime string `json:"social_media_time"`
	Country         string `json:"country"`
}

// BackgroundInput is page 1 as submitted. A nil Background is allowed once
// the batch already captured one.
type BackgroundInput struct {
	Background *Background `json:"background,omitempty"`
}

// Value returns the trimmed answer for f
func (b Background) Value(f BackgroundField) string {
	switch f {
	case BackgroundGender:
		return strings.TrimSpace(b.Gender)
	case BackgroundAge:
		return strings.TrimSpace(b.Age)
	case BackgroundEducation:
		return strings.TrimSpace(b.Education)
	case BackgroundSocialMediaTime:
		return strings.TrimSpace(b.SocialMediaTime)
	case BackgroundCountry:
		return strings.TrimSpace(b.Country)
	}
	return ""
}

// Ratings holds the page-2 ordinal answers
type Ratings struct {
	TopicFamiliarity   Rating `json:"topic_familiarity"`
	Understanding      Rating `json:"understanding"`
	Credibility        Rating `json:"credibility"`
	WillingnessToShare Rating `json:"willingness_to_share"`
	IntentStrength     Rating `json:"intent_strength"`
	BeliefChange       Rating `json:"belief_change"`
}

// Value returns the answer for f
func (r Ratings) Value(f RatingField) Rating {
	switch f {
	case RatingTopicFamiliarity:
		return r.TopicFamiliarity
	case RatingUnderstanding:
		return r.Understanding
	case RatingCredibility:
		return r.Credibility
	case RatingWillingnessToShare:
		return r.WillingnessToShare
	case RatingIntentStrength:
		return r.IntentStrength
	case RatingBeliefChange:
		return r.BeliefChange
	}
	return 0
}

// TextAnswers is everything asked per text
type TextAnswers struct {
	Ratings Ratings `json:"ratings"`
	Purpose string  `json:"purpose"`
}

// QuestionnaireResponse is the payload for an answered text
type QuestionnaireResponse struct {
	ParticipantCode string `json:"participant_code"`
	AllocationID    string `json:"allocation_id"`
	TextID          string `json:"text_id"`
	Topic           string `json:"topic"`
	Background
	Ratings
	Purpose string `json:"purpose"`
}

// SkipReport is the payload for a text the participant could not answer
type SkipReport struct {
	ParticipantCode string `json:"participant_code"`
	AllocationID    string `json:"allocation_id"`
	TextID          string `json:"text_id"`
	Topic           string `json:"topic"`
	Background
	SkippedDueToDisplayIssue string `json:"skipped_due_to_display_issue"`
	SkipReason               string `json:"skip_reason"`
	SkipReasonDetail         string `json:"skip_reason_detail"`
}

const (
	SkipFlagValue     = "1"
	SkipReasonDisplay = "display_issue"
)
