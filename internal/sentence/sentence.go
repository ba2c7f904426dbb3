// Package sentence splits long text into chunks an engine will accept.
//
// Text is broken at sentence ends first, then packed so each chunk stays
// under a rune limit. A sentence longer than the limit is split between
// words, and a single word longer than the limit is cut.
package sentence

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Split returns the sentences of text, trimmed, in order.
func Split(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Absorb runs like "?!" or "..." and closing quotes.
		end := i + 1
		for end < len(runes) && (isTerminator(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if runes[i] == '.' && isAbbreviation(runes[start:i+1]) {
			i = end - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Chunk packs the sentences of text into chunks of at most limit runes,
// joined by single spaces. A limit of zero or less returns the trimmed text
// as one chunk.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		if s := strings.TrimSpace(text); s != "" {
			return []string{s}
		}
		return nil
	}

	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	add := func(piece string) {
		size := utf8.RuneCountInString(piece)
		if n > 0 && n+1+size > limit {
			flush()
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(piece)
		n += size
	}

	for _, s := range Split(text) {
		if utf8.RuneCountInString(s) <= limit {
			add(s)
			continue
		}
		for _, w := range strings.Fields(s) {
			for utf8.RuneCountInString(w) > limit {
				r := []rune(w)
				flush()
				add(string(r[:limit]))
				w = string(r[limit:])
			}
			add(w)
		}
	}
	flush()
	return out
}

// EstimateDuration guesses how long text takes to speak at rate, where 1.0
// is about 150 words per minute.
func EstimateDuration(text string, rate float64) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	if rate <= 0 {
		rate = 1
	}
	seconds := float64(words) * 60 / (150 * rate)
	return time.Duration(seconds * float64(time.Second))
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}

// isAbbreviation reports whether the word ending at the final period of
// runes is a known abbreviation or an initial such as "J." or "U.S.".
func isAbbreviation(runes []rune) bool {
	i := len(runes) - 1
	for i > 0 && !unicode.IsSpace(runes[i-1]) {
		i--
	}
	word := strings.ToLower(strings.TrimLeft(string(runes[i:]), "\"'(["))
	if abbreviations[word] {
		return true
	}
	// Single letters and dotted initials.
	bare := strings.ReplaceAll(word, ".", "")
	return bare != "" && utf8.RuneCountInString(bare) == strings.Count(word, ".") && isLetters(bare)
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

var abbreviations = func() map[string]bool {
	m := make(map[string]bool)
	for _, a := range []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st", "vs", "etc",
		"inc", "ltd", "co", "corp", "dept", "no", "vol", "fig", "approx",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept",
		"oct", "nov", "dec", "e.g", "i.e", "ph.d", "mme", "mlle", "cf",
	} {
		m[a+"."] = true
	}
	return m
}()
