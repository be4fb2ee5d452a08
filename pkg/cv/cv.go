// Package cv holds the pure document-inspection functions for the CV
// payload. The server treats cvData as an opaque blob; the only structure it
// knows about is the fixed set of top-level sections needed for progress and
// name extraction. Unknown fields pass through storage and broadcast
// untouched.
package cv

import (
	"encoding/json"
	"math"
	"strings"
)

// Known top-level section keys.
const (
	sectionHeader          = "header"
	sectionProfile         = "profile"
	sectionExperience      = "experience"
	sectionEducation       = "education"
	sectionPersonalDetails = "personalDetails"
)

var textSections = []string{
	sectionProfile,
	sectionExperience,
	sectionEducation,
	sectionPersonalDetails,
}

// Header is the structured section contributing five independently counted
// sub-fields.
type Header struct {
	FullName string `json:"fullName"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Mobile   string `json:"mobile"`
	Email    string `json:"email"`
}

// Progress computes the completion percentage of a CV document.
//
// A section counts toward the denominator only if its key is present in the
// input at all, even when empty. The header contributes 5 sub-fields, each
// filled iff non-empty; a free-text section counts as filled iff its trimmed
// content is non-empty. The result is round(filled/total*100) with
// half-away-from-zero rounding, or 0 when no sections are present.
func Progress(data json.RawMessage) int {
	sections := topLevel(data)
	if sections == nil {
		return 0
	}

	total, filled := 0, 0

	if raw, ok := sections[sectionHeader]; ok && !isNull(raw) {
		total += 5
		var h Header
		// Malformed headers count 5 empty sub-fields rather than failing.
		_ = json.Unmarshal(raw, &h)
		for _, v := range []string{h.FullName, h.Address, h.City, h.Mobile, h.Email} {
			if v != "" {
				filled++
			}
		}
	}

	for _, key := range textSections {
		raw, ok := sections[key]
		if !ok {
			continue
		}
		total++
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
			filled++
		}
	}

	if total == 0 {
		return 0
	}
	return int(math.Round(float64(filled) / float64(total) * 100))
}

// DisplayName extracts the student's name from the header, falling back to
// "Unknown" for anonymous or incomplete documents.
func DisplayName(data json.RawMessage) string {
	sections := topLevel(data)
	if raw, ok := sections[sectionHeader]; ok {
		var h Header
		if err := json.Unmarshal(raw, &h); err == nil && h.FullName != "" {
			return h.FullName
		}
	}
	return "Unknown"
}

func topLevel(data json.RawMessage) map[string]json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil
	}
	return sections
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
