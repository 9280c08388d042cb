// Package textparse splits a raw catalog text into an optional headline and
// a body using the "headline:" / "text:" marker prefixes.
package textparse

import (
	"regexp"
	"strings"

	"readingsurvey/internal/model"
)

var (
	headlineMarker  = regexp.MustCompile(`(?i)^headline:\s*`)
	leadTextMarker  = regexp.MustCompile(`(?i)^text:\s*`)
	innerTextMarker = regexp.MustCompile(`(?i)\n\ntext:\s*`)

	// headline stops at the first blank-line text marker
	headlinePattern   = regexp.MustCompile(`(?is)^headline:\s*(.+?)(?:\n\ntext:|$)`)
	headedBodyPattern = regexp.MustCompile(`(?is)(?:^headline:.*?\n\ntext:|^text:)\s*(.+)$`)
	bodyOnlyPattern   = regexp.MustCompile(`(?is)^text:\s*(.+)$`)
)

// Parse never fails. Input without recognized markers comes back trimmed as
// the body with no title.
func Parse(raw string) model.ParsedText {
	if raw == "" {
		return model.ParsedText{Body: ""}
	}

	hasHeadline := headlineMarker.MatchString(raw)
	hasTextMarker := innerTextMarker.MatchString(raw) || leadTextMarker.MatchString(raw)

	switch {
	case hasHeadline && hasTextMarker:
		title := headlinePattern.FindStringSubmatch(raw)
		body := headedBodyPattern.FindStringSubmatch(raw)
		if title != nil && body != nil {
			t := strings.TrimSpace(title[1])
			return model.ParsedText{Title: &t, Body: strings.TrimSpace(body[1])}
		}
	case hasTextMarker:
		if body := bodyOnlyPattern.FindStringSubmatch(raw); body != nil {
			return model.ParsedText{Body: strings.TrimSpace(body[1])}
		}
	}

	return model.ParsedText{Body: strings.TrimSpace(raw)}
}
