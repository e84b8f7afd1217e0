package generate

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("```(?:json|JSON)?")
	trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)
	chattyRe        = regexp.MustCompile(`(?i)^(here|sure|okay|of course|hope)\b`)
	listMarkerRe    = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)
)

// candidatesResponse is the JSON shape the prompt asks for.
type candidatesResponse struct {
	Candidates []string `json:"candidates"`
}

// ParseCandidates extracts candidate lines from raw model output. It tries, in
// order: the {"candidates": [...]} object between the first '{' and the last
// '}', the same with trailing commas removed, a bare JSON array of strings,
// the complete strings of an array cut off mid-answer, and finally one
// candidate per meaningful line. Results are trimmed,
// de-duplicated and capped at limit when limit is positive.
func ParseCandidates(content string, limit int) []string {
	text := strings.TrimSpace(fenceRe.ReplaceAllString(content, ""))

	var found []string
	if obj, ok := between(text, '{', '}'); ok {
		found = decodeObject(obj)
	}
	if found == nil {
		if arr, ok := between(text, '[', ']'); ok {
			found = decodeArray(arr)
		}
	}
	if found == nil {
		found = completeStrings(text)
	}
	if found == nil {
		found = splitLines(text)
	}
	return clean(found, limit)
}

func between(s string, open, close byte) (string, bool) {
	i := strings.IndexByte(s, open)
	j := strings.LastIndexByte(s, close)
	if i < 0 || j <= i {
		return "", false
	}
	return s[i : j+1], true
}

func decodeObject(s string) []string {
	for _, cand := range []string{s, trailingCommaRe.ReplaceAllString(s, "$1")} {
		var r candidatesResponse
		if err := json.Unmarshal([]byte(cand), &r); err == nil && r.Candidates != nil {
			return r.Candidates
		}
	}
	return nil
}

func decodeArray(s string) []string {
	for _, cand := range []string{s, trailingCommaRe.ReplaceAllString(s, "$1")} {
		var r []string
		if err := json.Unmarshal([]byte(cand), &r); err == nil {
			return r
		}
	}
	return nil
}

// completeStrings reads string elements after the first '[' until the
// input ends or stops being a string array. A token cut off by the model's
// length cap is dropped.
func completeStrings(text string) []string {
	i := strings.IndexByte(text, '[')
	if i < 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(text[i:]))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var out []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		s, ok := tok.(string)
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || chattyRe.MatchString(line) || strings.HasPrefix(line, "{") || strings.HasPrefix(line, "}") {
			continue
		}
		line = listMarkerRe.ReplaceAllString(line, "")
		line = strings.Trim(line, `"',`)
		if len(line) > 3 {
			out = append(out, line)
		}
	}
	return out
}

func clean(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.Join(strings.Fields(c), " ")
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
