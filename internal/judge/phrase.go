package judge

import (
	"context"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultCues are the closing phrases that typically end a greeting.
var DefaultCues = []string{
	"leave a message",
	"leave your message",
	"leave me a message",
	"leave your name and number",
	"after the beep",
	"after the tone",
	"at the tone",
	"record your message",
	"i'll get back to you",
	"i will get back to you",
	"call you back",
}

const (
	defaultPhraseThreshold = 0.86
	defaultPhoneticFloor   = 0.70
)

// PhraseOption configures a [Phrase] judge.
type PhraseOption func(*Phrase)

// WithCues replaces [DefaultCues].
func WithCues(cues ...string) PhraseOption {
	return func(p *Phrase) {
		p.cues = tokenizeAll(cues)
	}
}

// WithPhraseThreshold sets the mean per-word Jaro-Winkler score a window of
// the transcript must reach to count as a cue. Default: 0.86.
func WithPhraseThreshold(v float64) PhraseOption {
	return func(p *Phrase) {
		p.threshold = v
	}
}

// Phrase is a local judge that looks for closing cues in the transcript.
// Words are compared with Double Metaphone codes and Jaro-Winkler
// similarity, so "leave a massage after the beat" still matches.
//
// Phrase makes no network calls and never fails. It is read-only after
// construction.
type Phrase struct {
	cues      [][]string
	threshold float64
}

// NewPhrase returns a Phrase judge using [DefaultCues] unless overridden.
func NewPhrase(opts ...PhraseOption) *Phrase {
	p := &Phrase{
		cues:      tokenizeAll(DefaultCues),
		threshold: defaultPhraseThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GreetingFinished implements [Judge].
func (p *Phrase) GreetingFinished(_ context.Context, transcript string) (bool, error) {
	_, _, ok := p.Match(transcript)
	return ok, nil
}

// Match returns the first cue found in transcript and its score.
func (p *Phrase) Match(transcript string) (cue string, score float64, ok bool) {
	words := tokenize(transcript)
	for _, c := range p.cues {
		if s := bestWindow(words, c); s >= p.threshold {
			return strings.Join(c, " "), s, true
		}
	}
	return "", 0, false
}

// bestWindow slides cue over words and returns the best mean word score.
func bestWindow(words, cue []string) float64 {
	if len(cue) == 0 || len(words) < len(cue) {
		return 0
	}
	best := 0.0
	for start := 0; start+len(cue) <= len(words); start++ {
		total := 0.0
		for i, want := range cue {
			s := wordScore(words[start+i], want)
			if s == 0 {
				total = 0
				break
			}
			total += s
		}
		if mean := total / float64(len(cue)); mean > best {
			best = mean
		}
	}
	return best
}

// wordScore is the Jaro-Winkler similarity of two words, or zero when they
// neither sound alike nor are spelled closely enough to be a mishearing.
func wordScore(heard, want string) float64 {
	if heard == want {
		return 1
	}
	jw := matchr.JaroWinkler(heard, want, false)
	if codesOverlap(metaphoneCodes(heard), metaphoneCodes(want)) {
		if jw >= defaultPhoneticFloor {
			return jw
		}
		return 0
	}
	// Short function words ("a", "the", "at") carry little phonetic signal.
	if len(want) <= 3 && jw >= 0.9 {
		return jw
	}
	if jw >= defaultPhraseThreshold {
		return jw
	}
	return 0
}

func metaphoneCodes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	primary, secondary := matchr.DoubleMetaphone(word)
	if primary != "" {
		out[primary] = struct{}{}
	}
	if secondary != "" {
		out[secondary] = struct{}{}
	}
	return out
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// tokenize lowercases s and splits it into words, keeping apostrophes so
// that contractions stay intact.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func tokenizeAll(phrases []string) [][]string {
	out := make([][]string, 0, len(phrases))
	for _, p := range phrases {
		if t := tokenize(p); len(t) > 0 {
			out = append(out, t)
		}
	}
	return out
}
