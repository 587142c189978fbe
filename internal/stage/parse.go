package stage

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
)

const (
	minFindings      = 3
	maxFindings      = 4
	minTalkingPoints = 2
	maxTalkingPoints = 3
	// DraftWordLimit is the soft cap on the draft body.
	DraftWordLimit = 150
)

// ValidationError reports stage output that failed structural checks.
type ValidationError struct {
	Stage  Name
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %s: invalid output: %s", e.Stage, e.Reason)
}

var (
	bulletRe  = regexp.MustCompile(`^\s*(?:[-*•]|\d{1,2}[.)])(?:\s+|$)`)
	subjectRe = regexp.MustCompile(`(?i)^\s*\**subject\**\s*:`)
	labelRe   = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?\**(summary|analysis)\**\s*:\s*\**\s*`)
	// headingRe matches markdown section titles: "### Summary" or a line that
	// is bold text alone, such as "**Talking Points:**".
	headingRe = regexp.MustCompile(`^\s*(#{1,6}\s+.*|\*\*[^*]+\*\*:?)\s*$`)
	greetRe   = regexp.MustCompile(`(?i)^(hi|hello|hey|dear|greetings)\b[^\n]{0,40}[,!:]$`)
	signoffRe = regexp.MustCompile(`(?i)^(best|best regards|regards|kind regards|warm regards|warmly|cheers|thanks|many thanks|thank you|sincerely|all the best|talk soon)[,.!]?$`)
)

// signoffLines is how far from the end a closing such as "Best," may sit;
// the lines after it are the signature.
const signoffLines = 4

type line struct {
	text   string
	bullet bool
}

func splitLines(text string) []line {
	var out []line
	for _, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(raw)
		if t == "" {
			continue
		}
		if loc := bulletRe.FindStringIndex(t); loc != nil {
			item := strings.TrimSpace(t[loc[1]:])
			if item != "" {
				out = append(out, line{text: item, bullet: true})
			}
			continue
		}
		out = append(out, line{text: t})
	}
	return out
}

// isHeading reports lines such as "Talking points:", "### Summary" or
// "**Primary Angle**" that only label the content that follows.
func isHeading(l line) bool {
	if l.bullet {
		return false
	}
	return headingRe.MatchString(l.text) ||
		strings.HasSuffix(l.text, ":") && len(strings.Fields(l.text)) <= 4
}

// stripLabel removes a leading "Summary:" style label, in plain, bold or
// heading form. It reports whether a label was present.
func stripLabel(text string) (string, bool) {
	loc := labelRe.FindStringIndex(text)
	if loc == nil {
		return text, false
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text[loc[1]:]), "**")), true
}

// ParseFindings extracts research findings from bullet or numbered lines.
// When the text has no list markers, each non-heading line is a finding.
// At least one finding is required; extras beyond four are dropped.
func ParseFindings(text string) (model.ResearchFindings, error) {
	lines := splitLines(text)

	var items []string
	for _, l := range lines {
		if l.bullet {
			items = append(items, l.text)
		}
	}
	if len(items) == 0 {
		for _, l := range lines {
			if !isHeading(l) {
				items = append(items, l.text)
			}
		}
	}

	if len(items) == 0 {
		return model.ResearchFindings{}, &ValidationError{Stage: Research, Reason: "no findings"}
	}
	if len(items) < minFindings {
		zap.L().Warn("stage: fewer findings than expected",
			zap.Int("findings", len(items)), zap.Int("expected_min", minFindings))
	}
	if len(items) > maxFindings {
		items = items[:maxFindings]
	}
	return model.ResearchFindings{Items: items}, nil
}

// ParseInsights splits analysis output into a summary paragraph (the prose
// lines) and talking points (the list lines). Both are required; at most
// three talking points are kept.
func ParseInsights(text string) (model.AnalysisInsights, error) {
	var summary, points []string
	for _, l := range splitLines(text) {
		if l.bullet {
			points = append(points, l.text)
			continue
		}
		if rest, labeled := stripLabel(l.text); labeled {
			if rest != "" {
				summary = append(summary, rest)
			}
			continue
		}
		if !isHeading(l) {
			summary = append(summary, l.text)
		}
	}

	if len(summary) == 0 {
		return model.AnalysisInsights{}, &ValidationError{Stage: Analysis, Reason: "missing summary paragraph"}
	}
	if len(points) == 0 {
		return model.AnalysisInsights{}, &ValidationError{Stage: Analysis, Reason: "no talking points"}
	}
	if len(points) < minTalkingPoints {
		zap.L().Warn("stage: fewer talking points than expected",
			zap.Int("talking_points", len(points)), zap.Int("expected_min", minTalkingPoints))
	}
	if len(points) > maxTalkingPoints {
		points = points[:maxTalkingPoints]
	}

	return model.AnalysisInsights{
		Summary:       strings.Join(summary, " "),
		TalkingPoints: points,
	}, nil
}

// ParseDraft validates the writing output. The body carries no subject,
// greeting or signature: a leading subject line, a leading greeting line
// and a closing such as "Best," with anything after it are removed. Drafts
// over DraftWordLimit words are accepted with a warning.
func ParseDraft(text string) (model.DraftMessage, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if subjectRe.MatchString(lines[0]) {
		lines = lines[1:]
	}
	lines = trimBlank(lines)
	if len(lines) > 0 && greetRe.MatchString(strings.TrimSpace(lines[0])) {
		zap.L().Debug("stage: dropped greeting from draft", zap.String("line", lines[0]))
		lines = trimBlank(lines[1:])
	}
	for i := len(lines) - 1; i >= 0 && i >= len(lines)-signoffLines; i-- {
		if signoffRe.MatchString(strings.TrimSpace(lines[i])) {
			zap.L().Debug("stage: dropped signature from draft", zap.Int("lines", len(lines)-i))
			lines = trimBlank(lines[:i])
			break
		}
	}

	body := strings.TrimSpace(strings.Join(lines, "\n"))
	if body == "" {
		return model.DraftMessage{}, &ValidationError{Stage: Writing, Reason: "empty draft"}
	}

	draft := model.DraftMessage{Body: body}
	if n := draft.WordCount(); n > DraftWordLimit {
		zap.L().Warn("stage: draft exceeds word limit",
			zap.Int("words", n), zap.Int("limit", DraftWordLimit))
	}
	return draft, nil
}

// trimBlank drops blank lines at both ends.
func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
