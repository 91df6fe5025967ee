package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("Acme raises $10M Series A", "https://news.example.com/acme-funding")
	b := Fingerprint("Acme raises $10M Series A", "https://news.example.com/acme-funding")
	assert.Equal(t, a, b)
}

func TestFingerprintNormalizesCase(t *testing.T) {
	a := Fingerprint("Acme Raises $10M", "https://News.Example.com/story")
	b := Fingerprint("acme raises $10m", "https://news.example.com/story")
	assert.Equal(t, a, b)
}

func TestFingerprintStripsTrackingParams(t *testing.T) {
	a := Fingerprint("Acme raises $10M", "https://news.example.com/story?utm_source=twitter&utm_campaign=spring")
	b := Fingerprint("Acme raises $10M", "https://news.example.com/story")
	assert.Equal(t, a, b)

	// Real query parameters still matter.
	c := Fingerprint("Acme raises $10M", "https://news.example.com/story?page=2")
	assert.NotEqual(t, b, c)
}

func TestFingerprintStripsTrailingSlash(t *testing.T) {
	a := Fingerprint("Acme raises $10M", "https://news.example.com/story/")
	b := Fingerprint("Acme raises $10M", "https://news.example.com/story")
	assert.Equal(t, a, b)
}

func TestFingerprintIgnoresSource(t *testing.T) {
	// Same story from two different outlets collides on purpose.
	a := Fingerprint("Acme raises $10M", "https://news.example.com/story")
	b := Fingerprint("Acme raises $10M", "https://news.example.com/story")
	assert.Equal(t, a, b)

	c := Fingerprint("Acme acquires Widget Co", "https://news.example.com/story")
	assert.NotEqual(t, a, c)
}

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, titleSimilarity("Acme raises $10M", "acme raises $10m"))
	assert.Greater(t, titleSimilarity(
		"Acme raises $10M in Series A funding round",
		"Acme raises $10M in Series A funding",
	), similarityThreshold)
	assert.Less(t, titleSimilarity(
		"Acme raises $10M",
		"Widget Co files for bankruptcy",
	), similarityThreshold)
	assert.Equal(t, 0.0, titleSimilarity("", "Acme raises $10M"))
}

func TestDedupeFirstSeenWins(t *testing.T) {
	payloads := []Payload{
		{Title: "Acme raises $10M Series A", URL: "https://a.example.com/1", Source: "news"},
		{Title: "Acme raises $10M Series A", URL: "https://a.example.com/1", Source: "social"},
	}

	kept := Dedupe(payloads, nil)
	require.Len(t, kept, 1)
	assert.Equal(t, "news", kept[0].Source)
}

func TestDedupeNearDuplicateTitles(t *testing.T) {
	payloads := []Payload{
		{Title: "Acme raises $10M in Series A funding round", URL: "https://a.example.com/1"},
		{Title: "Acme raises $10M in Series A funding", URL: "https://b.example.com/2"},
		{Title: "Widget Co announces layoffs", URL: "https://c.example.com/3"},
	}

	kept := Dedupe(payloads, nil)
	require.Len(t, kept, 2)
	assert.Equal(t, "https://a.example.com/1", kept[0].URL)
	assert.Equal(t, "https://c.example.com/3", kept[1].URL)
}

func TestDedupeFiltersKnownFingerprints(t *testing.T) {
	payloads := []Payload{
		{Title: "Acme raises $10M", URL: "https://a.example.com/1"},
		{Title: "Widget Co announces layoffs", URL: "https://c.example.com/3"},
	}

	known := map[string]bool{
		Fingerprint("Acme raises $10M", "https://a.example.com/1"): true,
	}

	kept := Dedupe(payloads, known)
	require.Len(t, kept, 1)
	assert.Equal(t, "https://c.example.com/3", kept[0].URL)
}

func TestDedupeEmptyInput(t *testing.T) {
	assert.Empty(t, Dedupe(nil, nil))
	assert.Empty(t, Dedupe([]Payload{}, map[string]bool{}))
}
