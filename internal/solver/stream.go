package solver

import (
	"encoding/json"
	"regexp"
	"strings"
)

// tokenFields are the field names under which agent CLIs report their
// session identifier, in the order they are checked.
var tokenFields = []string{"session_id", "sessionId", "conversation_id", "thread_id"}

// envelopeFields are the envelope keys one level down that may wrap the
// token-bearing object.
var envelopeFields = []string{"data", "message", "payload", "result"}

// limitPhrases mark a "limit reached" condition in free-text agent output.
// Heuristic by nature: agents phrase their quota errors however they like,
// so unknown phrasings fall through to ordinary failure handling.
var limitPhrases = []string{
	"limit reached",
	"rate_limit_exceeded",
	"usage limit",
	"out of free messages",
}

// resetRe matches limit messages of the form
// "5-hour limit reached ... resets at 3:30pm".
var resetRe = regexp.MustCompile(`(?i)(\d+)-hour limit reached.*resets at\s*(\d{1,2}):(\d{2})\s*(am|pm)`)

// StreamScanner classifies a solver's output line by line. It captures the
// first session token it sees (later occurrences are ignored), flags
// limit-reached phrases, and extracts a reset clock when one is present.
type StreamScanner struct {
	token      string
	limit      bool
	resetClock string
}

// Scan feeds one output line to the classifier.
func (s *StreamScanner) Scan(line string) {
	if s.token == "" {
		if tok := extractToken(line); tok != "" {
			s.token = tok
		}
	}
	lower := strings.ToLower(line)
	for _, phrase := range limitPhrases {
		if strings.Contains(lower, phrase) {
			s.limit = true
			break
		}
	}
	if s.resetClock == "" {
		if clock, ok := ParseResetClock(line); ok {
			s.resetClock = clock
		}
	}
}

// SessionToken returns the captured continuation token, if any.
func (s *StreamScanner) SessionToken() string { return s.token }

// LimitReached reports whether any line matched a limit phrase.
func (s *StreamScanner) LimitReached() bool { return s.limit }

// ResetClock returns the parsed reset time in "15:04" form, if any.
func (s *StreamScanner) ResetClock() string { return s.resetClock }

// extractToken pulls a session token out of one structured output line.
// The line must be a JSON object; the token may sit at the top level or
// nested one level inside a known envelope key.
func extractToken(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return ""
	}
	var msg map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return ""
	}
	if tok := tokenFromObject(msg); tok != "" {
		return tok
	}
	for _, key := range envelopeFields {
		if sub, ok := msg[key].(map[string]interface{}); ok {
			if tok := tokenFromObject(sub); tok != "" {
				return tok
			}
		}
	}
	return ""
}

func tokenFromObject(m map[string]interface{}) string {
	for _, field := range tokenFields {
		if v, ok := m[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ParseResetClock extracts the wall-clock reset time from a limit message,
// normalized to 24-hour "15:04" form.
func ParseResetClock(line string) (string, bool) {
	m := resetRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	hour := atoiSafe(m[2])
	minute := atoiSafe(m[3])
	if hour < 1 || hour > 12 || minute < 0 || minute > 59 {
		return "", false
	}
	if strings.EqualFold(m[4], "pm") && hour != 12 {
		hour += 12
	}
	if strings.EqualFold(m[4], "am") && hour == 12 {
		hour = 0
	}
	return twoDigit(hour) + ":" + twoDigit(minute), true
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func twoDigit(n int) string {
	if n < 10 {
		return string([]byte{'0', byte('0' + n)})
	}
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}
