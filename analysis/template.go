package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/marketlens/marketlens/core"
)

// The answer contract: every response carries exactly these four section
// markers, and if any numbered source was offered, at least one in-range
// bracket citation.
var requiredSections = []string{"Conclusion:", "Impact:", "Risk:", "Watchpoints:"}

var refPattern = regexp.MustCompile(`\[(\d+)\]`)

// enforceTemplate accepts the model's answer verbatim when it satisfies the
// contract and otherwise synthesizes a deterministic fallback that does.
func enforceTemplate(answer, question string, sourceCount int, retrieved []core.EventEvidence) string {
	content := strings.TrimSpace(answer)
	if templateSatisfied(content, sourceCount) {
		return content
	}
	return fallbackAnswer(question, sourceCount, retrieved)
}

// templateSatisfied checks the four markers and, when citable sources exist,
// that at least one citation is present and every one falls in
// [1, sourceCount].
func templateSatisfied(answer string, sourceCount int) bool {
	if answer == "" {
		return false
	}
	for _, section := range requiredSections {
		if !strings.Contains(answer, section) {
			return false
		}
	}
	if sourceCount <= 0 {
		return true
	}
	matches := refPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return false
	}
	for _, match := range matches {
		ref, err := strconv.Atoi(match[1])
		if err != nil || ref < 1 || ref > sourceCount {
			return false
		}
	}
	return true
}

// fallbackAnswer builds the degraded answer: the top retrieved source anchors
// the conclusion, the remaining sections carry source-referencing boilerplate,
// and synthetic citations cover up to the first three sources.
func fallbackAnswer(question string, sourceCount int, retrieved []core.EventEvidence) string {
	refs := renderRefs(sourceCount)

	var conclusion string
	if len(retrieved) > 0 {
		conclusion = strings.TrimSpace(fmt.Sprintf(
			"On %q, the most relevant lead currently available is: %s. %s", question, retrieved[0].Title, refs))
	} else {
		conclusion = strings.TrimSpace(fmt.Sprintf(
			"On %q, the available evidence is limited; treat this conclusion as provisional. %s", question, refs))
	}

	impact := strings.TrimSpace(
		"Near-term effects should show up mainly in risk appetite and repricing of expectations; confirm against upcoming releases. " + refs)

	var risk string
	if sourceCount > 0 {
		risk = strings.TrimSpace(
			"This answer was produced by structured degradation; add higher-quality sources to stabilize the conclusion. " + refs)
	} else {
		risk = "No citable evidence is available yet; gather sources before drawing a high-confidence conclusion."
	}

	watchpoints := strings.TrimSpace(
		"Keep tracking follow-up announcements, macro prints, and price reaction, and re-review on a rolling basis. " + refs)

	return strings.Join([]string{
		"Conclusion:",
		conclusion,
		"Impact:",
		impact,
		"Risk:",
		risk,
		"Watchpoints:",
		watchpoints,
	}, "\n")
}

// renderRefs emits citation markers [1]..[min(sourceCount, 3)].
func renderRefs(sourceCount int) string {
	if sourceCount <= 0 {
		return ""
	}
	count := min(sourceCount, 3)
	var sb strings.Builder
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&sb, "[%d]", i)
	}
	return sb.String()
}
