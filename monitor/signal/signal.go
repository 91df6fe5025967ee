package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"
)

// RawSignal is a single raw finding persisted before dedup so the full
// collection evidence stays auditable.
type RawSignal struct {
	ID          string
	RunID       string
	ClientID    string
	Source      string
	Payload     string
	Fingerprint string
	Processed   bool
	EventID     string
	CreatedAt   time.Time
}

// Payload is the normalized shape a collection source returns for a finding.
type Payload struct {
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	URL        string    `json:"url,omitempty"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// trackingParams are query parameters stripped during URL canonicalization
// so the same article shared through different campaigns fingerprints
// identically.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"ref":          true,
}

// Fingerprint computes a stable identity for a finding from its normalized
// title and canonicalized URL. The source is deliberately excluded: the same
// story surfaced by two sources must collide.
func Fingerprint(title, rawURL string) string {
	h := sha256.New()
	h.Write([]byte(normalizeTitle(title)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalizeURL(rawURL)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeTitle(title string) string {
	return strings.Join(tokenize(title), " ")
}

func canonicalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// similarityThreshold is the minimum token-set overlap for two titles to be
// treated as the same story.
const similarityThreshold = 0.8

// titleSimilarity returns the Jaccard overlap of the two titles' token sets.
func titleSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(s) {
		set[tok] = true
	}
	return set
}

// Dedupe collapses payloads that share a fingerprint or whose titles are
// near-duplicates. The first occurrence in input order wins, so callers that
// care about source priority order their inputs accordingly. Fingerprints
// already seen in prior runs are filtered via the known set.
func Dedupe(payloads []Payload, known map[string]bool) []Payload {
	seen := make(map[string]bool)
	var kept []Payload

	for _, p := range payloads {
		fp := Fingerprint(p.Title, p.URL)
		if known[fp] || seen[fp] {
			continue
		}

		duplicate := false
		for _, k := range kept {
			if titleSimilarity(p.Title, k.Title) >= similarityThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		seen[fp] = true
		kept = append(kept, p)
	}

	return kept
}

// SortByOccurrence orders payloads newest first, with stable ordering for
// equal timestamps.
func SortByOccurrence(payloads []Payload) {
	sort.SliceStable(payloads, func(i, j int) bool {
		return payloads[i].OccurredAt.After(payloads[j].OccurredAt)
	})
}
