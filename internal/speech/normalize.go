package speech

import (
	"regexp"
	"strings"
	"unicode"
)

// The synthesis voices mispronounce raw symbolic notation, so segments are
// normalized before leaving the process: decorative glyphs and emoji are
// stripped, exponent and simple fraction notation expanded to words, and
// markup delimiters removed.

var (
	exponentRe = regexp.MustCompile(`\s*\^\s*(\d+)`)
	fractionRe = regexp.MustCompile(`\b(\d+)\s*/\s*(\d+)\b`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

var fractionWords = map[string]string{
	"1/2": "one half",
	"1/3": "one third",
	"2/3": "two thirds",
	"1/4": "one quarter",
	"3/4": "three quarters",
}

// CleanForSpeech normalizes a text segment for pronunciation. It is a pure
// text-to-text function with no side effects.
func CleanForSpeech(text string) string {
	t := exponentRe.ReplaceAllStringFunc(text, expandExponent)
	t = fractionRe.ReplaceAllStringFunc(t, expandFraction)
	t = strings.Map(dropDecorative, t)
	t = spaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

func expandExponent(m string) string {
	digits := exponentRe.FindStringSubmatch(m)[1]
	switch digits {
	case "2":
		return " squared"
	case "3":
		return " cubed"
	default:
		return " to the power of " + digits
	}
}

func expandFraction(m string) string {
	parts := fractionRe.FindStringSubmatch(m)
	key := parts[1] + "/" + parts[2]
	if w, ok := fractionWords[key]; ok {
		return w
	}
	return parts[1] + " over " + parts[2]
}

// dropDecorative removes emoji and markup delimiters, mapping them to spaces
// so word boundaries survive.
func dropDecorative(r rune) rune {
	switch r {
	case '*', '_', '`', '#', '~', '\\', '|':
		return ' '
	}
	if isEmoji(r) {
		return ' '
	}
	return r
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2190 && r <= 0x21FF: // arrows
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	}
	return unicode.Is(unicode.So, r)
}
