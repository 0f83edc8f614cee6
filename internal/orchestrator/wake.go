package orchestrator

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultWakePhrase opens the wake gate.
const DefaultWakePhrase = "hey jarvis"

// DefaultReminderPrompt is spoken when the gate is pending and the user did
// not say the wake phrase.
const DefaultReminderPrompt = "Please say 'Hey Jarvis' to begin."

// WakeMatcher decides whether recognized text contains the wake phrase.
// Implementations must be pure and safe for concurrent use.
type WakeMatcher interface {
	Match(text, phrase string) bool
}

// SubstringMatcher matches when text contains phrase, ignoring case.
type SubstringMatcher struct{}

// Match implements [WakeMatcher].
func (SubstringMatcher) Match(text, phrase string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(phrase))
}

const defaultWakeThreshold = 0.88

// PhoneticMatcher accepts everything [SubstringMatcher] does and also
// tolerates recognition slips such as "hey jervis" or "hay jarvis". The text is
// scanned with a window of as many words as the phrase has; a window matches
// when every word pair shares a Double Metaphone code or scores at least the
// threshold under Jaro-Winkler.
type PhoneticMatcher struct {
	// Threshold is the minimum Jaro-Winkler similarity for a word pair that
	// shares no phonetic code. Zero means 0.88.
	Threshold float64
}

// Match implements [WakeMatcher].
func (p PhoneticMatcher) Match(text, phrase string) bool {
	if (SubstringMatcher{}).Match(text, phrase) {
		return true
	}
	want := words(phrase)
	got := words(text)
	if len(want) == 0 || len(got) < len(want) {
		return false
	}
	threshold := p.Threshold
	if threshold == 0 {
		threshold = defaultWakeThreshold
	}

	for i := 0; i+len(want) <= len(got); i++ {
		ok := true
		for j, w := range want {
			if !similar(got[i+j], w, threshold) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// similar reports whether two lower-case words sound alike.
func similar(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return matchr.JaroWinkler(a, b, false) >= threshold
}

// words splits s into lower-case alphanumeric tokens.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
