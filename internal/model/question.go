package model

import (
	"strconv"
	"strings"
)

// RatingField names a 1-based ordinal question on the questionnaire page
type RatingField string

const (
	RatingTopicFamiliarity   RatingField = "topic_familiarity"
	RatingUnderstanding      RatingField = "understanding"
	RatingCredibility        RatingField = "credibility"
	RatingWillingnessToShare RatingField = "willingness_to_share"
	RatingIntentStrength     RatingField = "intent_strength"
	RatingBeliefChange       RatingField = "belief_change"
)

// AllRatingFields lists every rating in questionnaire order
var AllRatingFields = []RatingField{
	RatingTopicFamiliarity,
	RatingUnderstanding,
	RatingCredibility,
	RatingWillingnessToShare,
	RatingIntentStrength,
	RatingBeliefChange,
}

// Valid reports whether f is a known rating
func (f RatingField) Valid() bool {
	for _, known := range AllRatingFields {
		if f == known {
			return true
		}
	}
	return false
}

// BackgroundField names a demographic question asked once per batch
type BackgroundField string

const (
	BackgroundGender          BackgroundField = "gender"
	BackgroundAge             BackgroundField = "age"
	BackgroundEducation       BackgroundField = "education"
	BackgroundSocialMediaTime BackgroundField = "social_media_time"
	BackgroundCountry         BackgroundField = "country"
)

// AllBackgroundFields lists every background field in page order
var AllBackgroundFields = []BackgroundField{
	BackgroundGender,
	BackgroundAge,
	BackgroundEducation,
	BackgroundSocialMediaTime,
	BackgroundCountry,
}

// Valid reports whether f is a known background field
func (f BackgroundField) Valid() bool {
	for _, known := range AllBackgroundFields {
		if f == known {
			return true
		}
	}
	return false
}

// Rating is a 1-based answer; zero means unanswered.
// It is sent as a decimal string, empty when unanswered.
type Rating int

func (r Rating) MarshalJSON() ([]byte, error) {
	if r <= 0 {
		return []byte(`""`), nil
	}
	return []byte(strconv.Quote(strconv.Itoa(int(r)))), nil
}

func (r *Rating) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*r = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*r = Rating(n)
	return nil
}

// Answered reports whether a value was selected
func (r Rating) Answered() bool {
	return r > 0
}
