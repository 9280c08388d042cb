package model

// SurveySettings holds the parts of the questionnaire that varied between
// deployments: batch size, consent checks, required fields and the gate on
// the purpose follow-up.
type SurveySettings struct {
	TargetCount          int               `json:"targetCount" yaml:"target_count"`
	MinCodeLength        int               `json:"minCodeLength" yaml:"min_code_length"`
	RequiredAffirmations []string          `json:"requiredAffirmations" yaml:"required_affirmations"`
	BackgroundFields     []BackgroundField `json:"backgroundFields" yaml:"background_fields"`
	RequiredRatings      []RatingField     `json:"requiredRatings" yaml:"required_ratings"`
	GateField            RatingField       `json:"gateField" yaml:"gate_field"`
	GateThreshold        int               `json:"gateThreshold" yaml:"gate_threshold"` // purpose required when GateField >= this
	RatingMax            int               `json:"ratingMax" yaml:"rating_max"`         // top of every rating scale
}

// DefaultSurveySettings returns the settings of the current five-text batch
func DefaultSurveySettings() SurveySettings {
	return SurveySettings{
		TargetCount:          5,
		MinCodeLength:        4,
		RequiredAffirmations: []string{"age", "understood", "voluntary"},
		BackgroundFields:     append([]BackgroundField(nil), AllBackgroundFields...),
		RequiredRatings:      append([]RatingField(nil), AllRatingFields...),
		GateField:            RatingIntentStrength,
		GateThreshold:        2,
		RatingMax:            7,
	}
}

// PurposeRequired reports whether the answers trip the follow-up gate
func (s SurveySettings) PurposeRequired(a TextAnswers) bool {
	v := a.Ratings.Value(s.GateField)
	return v.Answered() && int(v) <= s.RatingMax && int(v) >= s.GateThreshold
}

// OutOfRange lists the ratings in a that are set but fall outside 1..RatingMax
func (s SurveySettings) OutOfRange(a TextAnswers) []string {
	var bad []string
	for _, f := range AllRatingFields {
		v := a.Ratings.Value(f)
		if v < 0 || int(v) > s.RatingMax {
			bad = append(bad, string(f))
		}
	}
	return bad
}
