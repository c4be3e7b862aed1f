// Package merchant turns free-text counterparty strings into canonical brand
// tokens, matches them against known merchant records and plans the merging
// of duplicate records.
//
// Brand extraction is an ordered pipeline of named stages:
//
//	dictionary-hit -> personal-shape -> cleanup -> special-cases -> token-match
//
// Each stage can settle the result (a brand, or "not a merchant") or hand the
// working text to the next one.
package merchant

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	StageDictionaryHit = "dictionary-hit"
	StagePersonalShape = "personal-shape"
	StageCleanup       = "cleanup"
	StageSpecialCases  = "special-cases"
	StageTokenMatch    = "token-match"
)

// DefaultMatchThreshold is the minimum similarity accepted by FindBestMatch.
const DefaultMatchThreshold = 0.7

// Kind classifies a counterparty.
type Kind int

const (
	KindUnknown Kind = iota
	KindMerchant
	KindPersonal
)

func (k Kind) String() string {
	switch k {
	case KindMerchant:
		return "merchant"
	case KindPersonal:
		return "personal"
	default:
		return "unknown"
	}
}

type extraction struct {
	raw   string
	text  string
	brand string
	kind  Kind
	// settledBy names the stage that produced the result.
	settledBy string
}

type stage struct {
	name string
	run  func(r *Resolver, e *extraction) (done bool)
}

// Resolver extracts brands and matches merchants. It is immutable after
// construction and safe for concurrent use.
type Resolver struct {
	dict      Dictionary
	brands    []string // longest first
	brandSet  map[string]struct{}
	generic   map[string]struct{}
	threshold float64
	stages    []stage
}

type Option func(*Resolver)

// WithDictionary replaces the built-in dictionary.
func WithDictionary(d Dictionary) Option {
	return func(r *Resolver) { r.dict = d }
}

// WithMatchThreshold sets the minimum similarity for fuzzy matches.
func WithMatchThreshold(threshold float64) Option {
	return func(r *Resolver) { r.threshold = threshold }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		dict:      DefaultDictionary(),
		threshold: DefaultMatchThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.brandSet = make(map[string]struct{}, len(r.dict.Brands))
	for _, b := range r.dict.Brands {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		if _, dup := r.brandSet[b]; dup {
			continue
		}
		r.brandSet[b] = struct{}{}
		r.brands = append(r.brands, b)
	}
	sort.SliceStable(r.brands, func(i, j int) bool {
		return utf8.RuneCountInString(r.brands[i]) > utf8.RuneCountInString(r.brands[j])
	})

	r.generic = make(map[string]struct{}, len(r.dict.GenericPrefixes))
	for _, g := range r.dict.GenericPrefixes {
		r.generic[strings.ToLower(g)] = struct{}{}
	}

	r.stages = []stage{
		{StageDictionaryHit, (*Resolver).stageDictionaryHit},
		{StagePersonalShape, (*Resolver).stagePersonalShape},
		{StageCleanup, (*Resolver).stageCleanup},
		{StageSpecialCases, (*Resolver).stageSpecialCases},
		{StageTokenMatch, (*Resolver).stageTokenMatch},
	}
	return r
}

// Threshold returns the fuzzy match threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Stages returns the pipeline stage names in execution order.
func (r *Resolver) Stages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.name
	}
	return names
}

// ExtractBrand returns the canonical lower-case brand for a counterparty.
// ok is false when the text looks like a personal transfer or nothing
// brand-like survives cleanup.
func (r *Resolver) ExtractBrand(counterparty string) (brand string, ok bool) {
	e := r.extract(counterparty)
	return e.brand, e.kind == KindMerchant
}

// Classify is like ExtractBrand but tells personal transfers apart from
// unrecognisable text.
func (r *Resolver) Classify(counterparty string) (string, Kind) {
	e := r.extract(counterparty)
	return e.brand, e.kind
}

// IsGeneric reports whether word is a generic prefix such as "shop".
func (r *Resolver) IsGeneric(word string) bool {
	_, ok := r.generic[strings.ToLower(word)]
	return ok
}

func (r *Resolver) extract(counterparty string) extraction {
	e := extraction{raw: collapseSpaces(strings.TrimSpace(counterparty))}
	e.text = normalize(e.raw)
	if e.text == "" {
		return e
	}
	for _, s := range r.stages {
		if s.run(r, &e) {
			e.settledBy = s.name
			break
		}
	}
	return e
}

// stageDictionaryHit also tries the folded and alias-rewritten text so a
// known brand wins over a name-shaped descriptor.
func (r *Resolver) stageDictionaryHit(e *extraction) bool {
	for _, text := range []string{
		e.text,
		foldName(e.text),
		foldName(r.applySpecialCases(e.text)),
	} {
		if brand, ok := r.dictionaryHit(text); ok {
			e.brand, e.kind = brand, KindMerchant
			return true
		}
	}
	return false
}

func (r *Resolver) stagePersonalShape(e *extraction) bool {
	if r.looksPersonal(e.raw) {
		e.kind = KindPersonal
		return true
	}
	return false
}

func (r *Resolver) stageCleanup(e *extraction) bool {
	e.text = r.cleanup(e.text)
	return e.text == ""
}

func (r *Resolver) stageSpecialCases(e *extraction) bool {
	e.text = r.applySpecialCases(e.text)
	return e.text == ""
}

func (r *Resolver) stageTokenMatch(e *extraction) bool {
	if brand, ok := r.matchTokens(e.text); ok {
		e.brand, e.kind = brand, KindMerchant
	}
	return true
}

// dictionaryHit finds the longest dictionary brand occurring in text as a
// whole word or phrase.
func (r *Resolver) dictionaryHit(text string) (string, bool) {
	for _, b := range r.brands {
		if containsWord(text, b) {
			return b, true
		}
	}
	return "", false
}

func (r *Resolver) looksPersonal(raw string) bool {
	for _, p := range r.dict.PersonalPatterns {
		if p.MatchString(raw) {
			return true
		}
	}
	return false
}

func (r *Resolver) cleanup(text string) string {
	for _, rule := range r.dict.Cleanup {
		text = rule.Pattern.ReplaceAllString(text, rule.Replace)
	}
	return trimNoise(text)
}

func (r *Resolver) applySpecialCases(text string) string {
	for _, rule := range r.dict.SpecialCases {
		text = rule.Pattern.ReplaceAllString(text, rule.Replace)
	}
	return trimNoise(text)
}

// matchTokens looks for, in order: any token (or adjacent pair) equal to a
// brand; a token of at least four letters overlapping a brand of at least
// four letters (short tokens like "sp" would otherwise hit "spotify"); the first non-generic token of at least three letters.
func (r *Resolver) matchTokens(text string) (string, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return "", false
	}

	for i, tok := range tokens {
		if i+1 < len(tokens) {
			if pair := tok + " " + tokens[i+1]; r.isBrand(pair) {
				return pair, true
			}
		}
		if r.isBrand(tok) {
			return tok, true
		}
	}

	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < 4 {
			continue
		}
		for _, b := range r.brands {
			if utf8.RuneCountInString(b) < 4 {
				continue
			}
			if strings.Contains(tok, b) {
				return b, true
			}
			// Partial tokens only complete single-word brands: "king" must
			// not turn into "burger king".
			if !strings.Contains(b, " ") && strings.Contains(b, tok) {
				return b, true
			}
		}
	}

	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < 3 || r.IsGeneric(tok) || isNumeric(tok) {
			continue
		}
		return tok, true
	}
	return "", false
}

func (r *Resolver) isBrand(s string) bool {
	_, ok := r.brandSet[s]
	return ok
}

// normalize lower-cases the text and turns marketing separators ("UBER
// *EATS") into plain spaces.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "*", " ")
	return collapseSpaces(strings.TrimSpace(s))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimNoise(s string) string {
	s = collapseSpaces(s)
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+'
	})
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r) && r != '&' && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "&-")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// containsWord reports whether word occurs in s delimited by non-word runes
// or the ends of s.
func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
