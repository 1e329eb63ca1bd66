package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect_SingleLanguageShortCircuits(t *testing.T) {
	d := New()

	lang, detected := d.Detect("Wie geht es dir?", []string{"English"})

	assert.Equal(t, "english", lang)
	assert.Equal(t, []string{"english"}, detected)
}

func TestDetect_NoLanguagesUsesDefault(t *testing.T) {
	lang, _ := New().Detect("hello", nil)

	assert.Equal(t, DefaultLanguage, lang)
}

func TestDetect_PicksAmongSupported(t *testing.T) {
	d := New()
	supported := []string{"english", "german"}

	lang, detected := d.Detect("Wie kann ich mein Passwort zurücksetzen?", supported)

	assert.Equal(t, "german", lang)
	assert.Equal(t, "german", detected[0])
	assert.Subset(t, supported, detected)
}

func TestDetect_UnknownNamesIgnored(t *testing.T) {
	// klingon is not a lingua language, so only english is usable
	lang, detected := New().Detect("some text", []string{"klingon", "english"})

	assert.Equal(t, "klingon", lang)
	assert.Equal(t, []string{"klingon"}, detected)
}
