// Package transcript normalises spoken instructions before they reach the
// AI mutation service.
//
// Browser speech recognition routinely garbles the closed vocabulary the
// mutation prompt depends on — lifecycle statuses, categories, and
// platform names come out as "developmint" or "side projekt". The
// [Corrector] walks the finalized utterance and snaps phonetic near-misses
// of known vocabulary terms back to their canonical spelling, leaving all
// other words untouched. Free text is never corrected; mishearings outside
// the vocabulary are the mutation model's problem.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/internal/transcript/phonetic"
)

// Corrector thresholds are stricter than the matcher defaults because the
// input is free speech rather than a short entity reference: ordinary
// words must not be mistaken for vocabulary terms.
const (
	correctorPhoneticThreshold = 0.85
	correctorFuzzyThreshold    = 0.94

	// alignThreshold is the minimum whole-window similarity to the term.
	// The matcher also scores on the best token pair, which would let a
	// window containing one strong token swallow its neighbours.
	alignThreshold = 0.90
)

// DomainVocabulary returns the closed vocabulary of an idea record: every
// status, category, and platform name the mutation service recognises.
func DomainVocabulary() []string {
	return []string{
		string(idea.StatusIdea),
		string(idea.StatusDevelopment),
		string(idea.StatusTesting),
		string(idea.StatusPublished),
		string(idea.CategoryWork),
		string(idea.CategoryLeisure),
		string(idea.CategorySideProject),
		string(idea.CategoryOther),
		string(idea.PlatformDesktop),
		string(idea.PlatformMobile),
		string(idea.PlatformTablet),
		string(idea.PlatformTV),
	}
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(c *Corrector) {
		c.matcher = m
	}
}

// Corrector snaps phonetic near-misses of vocabulary terms to their
// canonical spelling. It is read-only after construction and safe for
// concurrent use.
type Corrector struct {
	matcher  *phonetic.Matcher
	terms    []string
	maxWords int
}

// NewCorrector creates a Corrector for the given vocabulary. Most callers
// pass [DomainVocabulary].
func NewCorrector(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		matcher: phonetic.New(
			phonetic.WithPhoneticThreshold(correctorPhoneticThreshold),
			phonetic.WithFuzzyThreshold(correctorFuzzyThreshold),
		),
		terms: terms,
	}
	for _, o := range opts {
		o(c)
	}
	for _, term := range terms {
		if n := len(strings.Fields(term)); n > c.maxWords {
			c.maxWords = n
		}
	}
	return c
}

// Correct returns text with vocabulary near-misses replaced by their
// canonical terms. Windows that already equal a term case-insensitively
// are left untouched — the job is fixing mishearings, not casing. Token
// spacing is normalised; everything else survives verbatim.
func (c *Corrector) Correct(text string) string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || c.maxWords == 0 {
		return text
	}

	var out []string
	i := 0
	for i < len(tokens) {
		// Longest n-gram first so multi-word terms beat their fragments.
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		replaced := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, _, ok := c.matcher.Match(window, c.terms)
			if !ok {
				continue
			}
			if strings.EqualFold(window, term) {
				// Already canonical; consume the whole window so its
				// fragments cannot re-match on a narrower pass.
				out = append(out, tokens[i:i+n]...)
				i += n
				replaced = true
				break
			}
			// A window shorter than the term is a fragment match
			// ("projekt" alone must not expand into "Side Project").
			if n < len(strings.Fields(term)) {
				continue
			}
			// The window as a whole must resemble the term, not just
			// one token of it.
			concatWindow := strings.ToLower(strings.Join(tokens[i:i+n], ""))
			concatTerm := strings.ToLower(strings.ReplaceAll(term, " ", ""))
			if matchr.JaroWinkler(concatWindow, concatTerm, false) < alignThreshold {
				continue
			}
			out = append(out, term)
			i += n
			replaced = true
			break
		}
		if !replaced {
			out = append(out, tokens[i])
			i++
		}
	}

	return strings.Join(out, " ")
}
