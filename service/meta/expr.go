package meta

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// ExpandEnv substitutes ${env.KEY} with the KEY environment variable; unset
// keys expand to "". Malformed references are kept literally.
func ExpandEnv(text string) string {
	var out strings.Builder
	for {
		start := strings.Index(text, envPrefix)
		if start < 0 {
			out.WriteString(text)
			return out.String()
		}
		out.WriteString(text[:start])
		rest := text[start+len(envPrefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			out.WriteString(text[start:])
			return out.String()
		}
		key := rest[:end]
		if !isEnvKey(key) {
			out.WriteString(envPrefix)
			text = rest
			continue
		}
		out.WriteString(os.Getenv(key))
		text = rest[end+1:]
	}
}

func isEnvKey(key string) bool {
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
