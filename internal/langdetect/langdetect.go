// Package langdetect resolves the language of a query among the languages a
// workspace supports.
package langdetect

import (
	"slices"
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// DefaultLanguage is used when a workspace lists no languages.
const DefaultLanguage = "english"

// Detector wraps lingua detectors, one per distinct supported-language set.
// It is safe for concurrent use.
type Detector struct {
	byName map[string]lingua.Language

	mu        sync.Mutex
	detectors map[string]lingua.LanguageDetector
}

// New creates a detector.
func New() *Detector {
	byName := make(map[string]lingua.Language)
	for _, l := range lingua.AllLanguages() {
		byName[strings.ToLower(l.String())] = l
	}
	return &Detector{byName: byName, detectors: make(map[string]lingua.LanguageDetector)}
}

// Detect returns the most likely language of text among supported, plus
// every supported language with non-zero confidence, most likely first.
// With one usable language, or no signal, the first supported language wins.
func (d *Detector) Detect(text string, supported []string) (string, []string) {
	if len(supported) == 0 {
		supported = []string{DefaultLanguage}
	}
	fallback := strings.ToLower(supported[0])

	var langs []lingua.Language
	for _, name := range supported {
		if l, ok := d.byName[strings.ToLower(name)]; ok && !slices.Contains(langs, l) {
			langs = append(langs, l)
		}
	}
	if len(langs) < 2 || strings.TrimSpace(text) == "" {
		return fallback, []string{fallback}
	}

	var detected []string
	for _, cv := range d.detectorFor(langs).ComputeLanguageConfidenceValues(text) {
		if cv.Value() > 0 {
			detected = append(detected, strings.ToLower(cv.Language().String()))
		}
	}
	if len(detected) == 0 {
		return fallback, []string{}
	}
	return detected[0], detected
}

func (d *Detector) detectorFor(langs []lingua.Language) lingua.LanguageDetector {
	sorted := slices.Clone(langs)
	slices.Sort(sorted)
	var key strings.Builder
	for _, l := range sorted {
		key.WriteString(l.String())
		key.WriteByte(',')
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if det, ok := d.detectors[key.String()]; ok {
		return det
	}
	det := lingua.NewLanguageDetectorBuilder().
		FromLanguages(sorted...).
		Build()
	d.detectors[key.String()] = det
	return det
}
