package cache

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/felipepmaragno/agentrouter/internal/domain"
)

// Normalize lowercases and trims input, collapses whitespace runs to a single space
// and then drops every character that is neither a word character nor whitespace.
// "Hello!" and "hello" normalize to the same string.
func Normalize(input string) string {
	collapsed := strings.Join(strings.Fields(strings.ToLower(input)), " ")

	var b strings.Builder
	b.Grow(len(collapsed))
	for _, r := range collapsed {
		if isWordChar(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordChar(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// Fingerprint is the 31-multiplier rolling hash over UTF-16 code units, wrapped to
// 32 bits, made non-negative and rendered in base 36. It is not collision resistant.
func Fingerprint(normalized string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(normalized)) {
		h = (h << 5) - h + int32(unit)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

func Key(taskType domain.TaskType, fingerprint string) string {
	return string(taskType) + ":" + fingerprint
}

func keyFor(input string, taskType domain.TaskType) (key, hash string) {
	hash = Fingerprint(Normalize(input))
	return Key(taskType, hash), hash
}
