// Package prompt turns an annotated block into the text of a generation
// request.
//
// The default templates are embedded; custom ones can be loaded from a
// directory holding system.md and user.md, written in text/template syntax
// against [Data].
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/MrWong99/cadence/internal/generate"
	"github.com/MrWong99/cadence/pkg/types"
)

//go:embed templates/system.md
var defaultSystem string

//go:embed templates/user.md
var defaultUser string

// Feedback describes rejected candidates from earlier attempts.
type Feedback struct {
	// Attempt is the 1-based number of the attempt being prepared.
	Attempt int

	// Rejected are the failed validations of the previous attempt.
	Rejected []types.ValidationResult
}

// Templater builds generation requests.
//
// Implementations must be safe for concurrent use.
type Templater interface {
	// Template renders the request for n candidates fitting block. fb is nil
	// on the first attempt.
	Template(block types.Block, n int, fb *Feedback) (generate.Request, error)
}

// Data is the value user templates are executed against.
type Data struct {
	CandidateCount     int
	SyllableCount      int
	StressPattern      string
	TempoBPM           float64
	SustainConstraints string
	PitchGuidance      string
	PhoneticHints      string
	Feedback           string
}

// TextTemplater renders requests with text/template.
type TextTemplater struct {
	system string
	user   *template.Template
}

// Compile-time assertion that TextTemplater implements Templater.
var _ Templater = (*TextTemplater)(nil)

// Default returns the templater with the embedded prompts.
func Default() *TextTemplater {
	t, err := New(defaultSystem, defaultUser)
	if err != nil {
		panic(fmt.Sprintf("prompt: embedded template: %v", err))
	}
	return t
}

// New parses a system prompt and a user template.
func New(system, user string) (*TextTemplater, error) {
	tmpl, err := template.New("user").Option("missingkey=error").Parse(user)
	if err != nil {
		return nil, fmt.Errorf("prompt: parse user template: %w", err)
	}
	return &TextTemplater{system: strings.TrimSpace(system), user: tmpl}, nil
}

// FromDir loads system.md and user.md from dir.
func FromDir(dir string) (*TextTemplater, error) {
	system, err := os.ReadFile(filepath.Join(dir, "system.md"))
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	user, err := os.ReadFile(filepath.Join(dir, "user.md"))
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	return New(string(system), string(user))
}

// Template implements [Templater].
func (t *TextTemplater) Template(block types.Block, n int, fb *Feedback) (generate.Request, error) {
	var buf bytes.Buffer
	if err := t.user.Execute(&buf, NewData(block, n, fb)); err != nil {
		return generate.Request{}, fmt.Errorf("prompt: render user template: %w", err)
	}
	return generate.Request{
		System: t.system,
		User:   strings.TrimSpace(buf.String()),
		Count:  n,
	}, nil
}

// NewData derives template values from block.
func NewData(block types.Block, n int, fb *Feedback) Data {
	return Data{
		CandidateCount:     n,
		SyllableCount:      block.SyllableTarget(),
		StressPattern:      block.StressPattern(),
		TempoBPM:           block.TempoBPM,
		SustainConstraints: SustainConstraints(block.Segments),
		PitchGuidance:      PitchGuidance(block.Segments),
		PhoneticHints:      PhoneticHints(block.Segments),
		Feedback:           formatFeedback(fb),
	}
}

// SustainConstraints lists the sustained syllables with an open vowel hint.
func SustainConstraints(segs []types.Segment) string {
	var lines []string
	for i, s := range segs {
		if s.IsSustained {
			lines = append(lines, fmt.Sprintf("Syllable %d is long (sustained), use open vowels like 'fly', 'go', 'day', 'way', 'sky'.", i+1))
		}
	}
	if len(lines) == 0 {
		return "No sustained notes. All syllables are short."
	}
	return strings.Join(lines, "\n")
}

// PitchGuidance describes every non-mid pitch contour.
func PitchGuidance(segs []types.Segment) string {
	var lines []string
	for i, s := range segs {
		n := i + 1
		switch s.Pitch {
		case types.PitchHigh:
			lines = append(lines, fmt.Sprintf("- Syllable %d is high-pitch. Use bright, open vowels (EE, AY, OH).", n))
		case types.PitchLow:
			lines = append(lines, fmt.Sprintf("- Syllable %d is low-pitch. Use deep vowels (OO, AW, O).", n))
		case types.PitchRising:
			lines = append(lines, fmt.Sprintf("- Syllable %d rises in pitch. Build energy into the word.", n))
		case types.PitchFalling:
			lines = append(lines, fmt.Sprintf("- Syllable %d falls in pitch. Use it for emphasis or resolution.", n))
		}
	}
	if len(lines) == 0 {
		return "All syllables are mid-pitch. Standard syllable placement."
	}
	return strings.Join(lines, "\n")
}

// PhoneticHints lists the sounds heard on each syllable. Audio-derived
// fallback labels carry no phonemes and are skipped.
func PhoneticHints(segs []types.Segment) string {
	var lines []string
	for i, s := range segs {
		if s.Fallback || s.PhonemeLabel == "" || strings.HasPrefix(s.PhonemeLabel, "<") {
			continue
		}
		lines = append(lines, fmt.Sprintf("- Syllable %d sounds like: /%s/", i+1, strings.ToLower(s.PhonemeLabel)))
	}
	if len(lines) == 0 {
		return "No clear phonetic patterns detected. Generate based on rhythm only."
	}
	return strings.Join(lines, "\n")
}

func formatFeedback(fb *Feedback) string {
	if fb == nil || len(fb.Rejected) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, r := range fb.Rejected {
		fmt.Fprintf(&sb, "- %q: ", r.Candidate)
		if r.SyllableCount > 0 {
			fmt.Fprintf(&sb, "%d syllables", r.SyllableCount)
		} else {
			sb.WriteString(r.Reason)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
