package aurora

import "strings"

// regConfigs are the PostgreSQL text search configurations shipped with a
// stock server.
var regConfigs = map[string]bool{
	"arabic": true, "armenian": true, "basque": true, "catalan": true,
	"danish": true, "dutch": true, "english": true, "finnish": true,
	"french": true, "german": true, "greek": true, "hindi": true,
	"hungarian": true, "indonesian": true, "irish": true, "italian": true,
	"lithuanian": true, "nepali": true, "norwegian": true, "portuguese": true,
	"romanian": true, "russian": true, "serbian": true, "spanish": true,
	"swedish": true, "tamil": true, "turkish": true, "yiddish": true,
}

// RegConfig maps a language name to a text search configuration, falling
// back to simple.
func RegConfig(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if regConfigs[lang] {
		return lang
	}
	return "simple"
}
