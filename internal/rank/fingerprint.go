// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// numericTolerance is the relative difference under which two numbers are
// treated as the same value.
const numericTolerance = 0.001

var (
	datePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(t[0-9:.z+-]*)?\b`)

	scaleWords = map[string]float64{
		"thousand": 1e3,
		"million":  1e6, "mn": 1e6,
		"billion": 1e9, "bn": 1e9,
		"trillion": 1e12,
	}

	fillerWords = map[string]bool{
		"a": true, "an": true, "and": true, "as": true, "at": true, "by": true, "for": true,
		"from": true, "in": true, "is": true, "its": true, "of": true, "on": true, "or": true,
		"the": true, "to": true, "was": true, "were": true, "with": true, "inc": true,
	}

	// unitWords qualify a number without naming what it measures.
	unitWords = map[string]bool{
		"usd": true, "eur": true, "gbp": true, "percent": true, "pct": true, "shares": true,
	}
)

// fingerprint is the comparable content of a candidate: its words and the
// numbers it states.
type fingerprint struct {
	terms   map[string]bool // non-numeric words
	tokens  map[string]bool // terms plus canonical number tokens
	numbers []float64
}

// fingerprintOf extracts a fingerprint from the payload. Entity tickers and
// filler words are ignored; calendar years and ISO dates are not numbers.
func fingerprintOf(c types.Candidate) fingerprint {
	fp := fingerprint{terms: map[string]bool{}, tokens: map[string]bool{}}
	entity := strings.ToLower(c.Entity)

	text := strings.ToLower(c.Payload.Text)
	text = datePattern.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, ",", "")

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '$' && r != '%' && r != '-'
	})
	for i := 0; i < len(fields); i++ {
		w := strings.Trim(fields[i], ".")
		if strings.Trim(w, "-") == "" {
			continue
		}
		if v, ok := parseNumber(w); ok {
			scaled := false
			if i+1 < len(fields) {
				if m, ok := scaleWords[strings.Trim(fields[i+1], ".")]; ok {
					v *= m
					scaled = true
					i++
				}
			}
			if !scaled && isYear(v) {
				continue
			}
			fp.addNumber(v)
			continue
		}
		w = strings.Trim(w, "$%-")
		if len(w) < 2 || w == entity || fillerWords[w] {
			continue
		}
		fp.terms[w] = true
		fp.tokens[w] = true
	}

	keys := make([]string, 0, len(c.Payload.Numeric))
	for k := range c.Payload.Numeric {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fp.addNumber(c.Payload.Numeric[k])
	}
	return fp
}

func (fp *fingerprint) addNumber(v float64) {
	for _, n := range fp.numbers {
		if sameNumber(n, v) {
			return
		}
	}
	fp.numbers = append(fp.numbers, v)
	fp.tokens["#"+strconv.FormatFloat(v, 'g', 4, 64)] = true
}

// similarity is the larger of token Jaccard similarity and numeric
// agreement.
func similarity(a, b fingerprint) float64 {
	return math.Max(jaccard(a.tokens, b.tokens), numericAgreement(a, b))
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// numericAgreement is 1 when both fingerprints state the same set of numbers
// and every label word of the one with fewer labels appears in the other.
// Unit words are not labels.
func numericAgreement(a, b fingerprint) float64 {
	if len(a.numbers) == 0 || len(a.numbers) != len(b.numbers) {
		return 0
	}
	if !containsNumbers(a.numbers, b.numbers) || !containsNumbers(b.numbers, a.numbers) {
		return 0
	}
	small, large := a.labels(), b.labels()
	if len(small) > len(large) {
		small, large = large, small
	}
	if len(small) == 0 {
		return 0
	}
	for t := range small {
		if !large[t] {
			return 0
		}
	}
	return 1
}

func containsNumbers(sub, set []float64) bool {
	for _, n := range sub {
		found := false
		for _, m := range set {
			if sameNumber(n, m) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (fp fingerprint) labels() map[string]bool {
	out := make(map[string]bool, len(fp.terms))
	for t := range fp.terms {
		if !unitWords[t] {
			out[t] = true
		}
	}
	return out
}

func sameNumber(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= numericTolerance*scale
}

// parseNumber accepts "394.3", "$85.2", "26.6%", and "-3.1%". Hyphenated
// words such as "10-k" or "50-day" are not numbers.
func parseNumber(w string) (float64, bool) {
	sign := 1.0
	if strings.HasPrefix(w, "-") {
		sign, w = -1, w[1:]
	}
	w = strings.TrimPrefix(w, "$")
	w = strings.TrimSuffix(w, "%")
	if w == "" || !unicode.IsDigit(rune(w[0])) {
		return 0, false
	}
	v, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, false
	}
	return sign * v, true
}

func isYear(v float64) bool {
	return v == math.Trunc(v) && v >= 1900 && v <= 2100
}
