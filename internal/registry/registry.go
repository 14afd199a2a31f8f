// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry resolves free text to known ticker symbols. Resolution is
// deterministic: exact ticker, exact name or alias, then single-edit fuzzy
// matches on long words.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/store"
)

// minFuzzyLen is the shortest word eligible for fuzzy matching.
const minFuzzyLen = 5

// corporateSuffixes are dropped from company names before matching.
var corporateSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"co": true, "company": true, "ltd": true, "plc": true, "llc": true,
	"group": true, "holdings": true, "the": true,
}

// Entity is one known company.
type Entity struct {
	Ticker  string   `yaml:"ticker"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Registry is a concurrency-safe entity index. Reload swaps the index
// atomically so lookups never see a partial refresh.
type Registry struct {
	mu  sync.RWMutex
	idx *index
}

type index struct {
	entities []Entity
	tickers map[string]string   // upper ticker -> ticker
	phrases map[string]string   // normalized name or alias -> ticker
	fuzzy   map[string][]string // single long word -> tickers, for edit-distance matches
	longest int                 // words in the longest phrase
}

// New returns a registry over entities.
func New(entities []Entity) *Registry {
	r := &Registry{}
	r.Reload(entities)
	return r
}

// FromCompanies builds a registry from store rows.
func FromCompanies(companies []store.Company) *Registry {
	entities := make([]Entity, len(companies))
	for i, c := range companies {
		entities[i] = Entity{Ticker: c.Ticker, Name: c.Name, Aliases: c.Aliases}
	}
	return New(entities)
}

// CompanyLister lists the entity master table.
type CompanyLister interface {
	Companies(ctx context.Context) ([]store.Company, error)
}

// LoadStore builds a registry from the companies table.
func LoadStore(ctx context.Context, s CompanyLister) (*Registry, error) {
	companies, err := s.Companies(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading entity registry: %w", err)
	}
	return FromCompanies(companies), nil
}

// LoadFile reads a YAML file with a top-level companies list. Seed files
// have this shape, so a seed doubles as a registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}
	var doc struct {
		Companies []Entity `yaml:"companies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry file %s: %w", path, err)
	}
	return New(doc.Companies), nil
}

// Reload replaces the index with entities.
func (r *Registry) Reload(entities []Entity) {
	idx := &index{
		tickers: make(map[string]string),
		phrases: make(map[string]string),
		fuzzy:   make(map[string][]string),
	}
	for _, e := range entities {
		ticker := NormalizeTicker(e.Ticker)
		if ticker == "" {
			continue
		}
		idx.tickers[ticker] = ticker
		idx.entities = append(idx.entities, Entity{Ticker: ticker, Name: e.Name, Aliases: append([]string(nil), e.Aliases...)})

		keys := append([]string{e.Name}, e.Aliases...)
		for _, k := range keys {
			words := nameWords(k)
			if len(words) == 0 {
				continue
			}
			phrase := strings.Join(words, " ")
			if _, taken := idx.phrases[phrase]; !taken {
				idx.phrases[phrase] = ticker
			}
			if len(words) > idx.longest {
				idx.longest = len(words)
			}
			if len(words) == 1 && len([]rune(words[0])) >= minFuzzyLen {
				idx.fuzzy[words[0]] = appendUnique(idx.fuzzy[words[0]], ticker)
			}
		}
	}
	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()
}

// Len returns the number of known tickers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.idx == nil {
		return 0
	}
	return len(r.idx.tickers)
}

// Entities returns the indexed entities in load order.
func (r *Registry) Entities() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.idx == nil {
		return nil
	}
	return append([]Entity(nil), r.idx.entities...)
}

// Known reports whether ticker is in the registry.
func (r *Registry) Known(ticker string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.idx == nil {
		return false
	}
	_, ok := r.idx.tickers[NormalizeTicker(ticker)]
	return ok
}

// Resolve returns the tickers mentioned in text in order of first
// appearance, without duplicates. Tickers match when written in upper case
// or with a leading $; names and aliases match case-insensitively; a word
// of at least five letters one edit away from a single-word name or alias
// and written capitalized matches when no exact rule applied to it.
func (r *Registry) Resolve(text string) []string {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	if idx == nil {
		return nil
	}

	toks := tokenize(text)
	var out []string
	seen := map[string]bool{}
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	for i := 0; i < len(toks); {
		tok := toks[i]

		if t, ok := idx.tickerMatch(tok.raw); ok {
			add(t)
			i++
			continue
		}

		// Longest phrase first.
		matched := 0
		for n := min(idx.longest, len(toks)-i); n >= 1; n-- {
			words := make([]string, n)
			for j := 0; j < n; j++ {
				words[j] = toks[i+j].lower
			}
			if t, ok := idx.phrases[strings.Join(words, " ")]; ok {
				add(t)
				matched = n
				break
			}
		}
		if matched > 0 {
			i += matched
			continue
		}

		if startsUpper(tok.raw) {
			if t, ok := idx.fuzzyMatch(tok.lower); ok {
				add(t)
			}
		}
		i++
	}
	return out
}

func (idx *index) tickerMatch(raw string) (string, bool) {
	dollar := strings.HasPrefix(raw, "$")
	sym := strings.TrimPrefix(raw, "$")
	if sym == "" {
		return "", false
	}
	if !dollar && sym != strings.ToUpper(sym) {
		return "", false
	}
	t, ok := idx.tickers[NormalizeTicker(sym)]
	return t, ok
}

// fuzzyMatch accepts a unique single-word key within edit distance 1.
func (idx *index) fuzzyMatch(word string) (string, bool) {
	if len([]rune(word)) < minFuzzyLen {
		return "", false
	}
	var keys []string
	for k := range idx.fuzzy {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var found []string
	for _, k := range keys {
		if levenshtein(word, k) <= 1 {
			for _, t := range idx.fuzzy[k] {
				found = appendUnique(found, t)
			}
		}
	}
	if len(found) != 1 {
		return "", false
	}
	return found[0], true
}

// NormalizeTicker upper-cases s and strips a leading $ and surrounding
// punctuation.
func NormalizeTicker(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' })
	s = strings.TrimSuffix(s, ".")
	return strings.ToUpper(s)
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

type token struct {
	raw   string
	lower string
}

// tokenize splits text into words, keeping a leading $ and inner dots.
func tokenize(text string) []token {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$' && r != '.' && r != '&'
	})
	var out []token
	for _, f := range fields {
		f = strings.TrimRight(f, ".")
		if f == "" || f == "$" || f == "&" {
			continue
		}
		out = append(out, token{raw: f, lower: strings.ToLower(f)})
	}
	return out
}

// nameWords lower-cases a name and drops corporate suffixes and
// punctuation: "JPMorgan Chase & Co." becomes [jpmorgan chase].
func nameWords(name string) []string {
	var words []string
	for _, t := range tokenize(name) {
		w := strings.Trim(t.lower, ".$")
		if w == "" || corporateSuffixes[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

// levenshtein returns the edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
