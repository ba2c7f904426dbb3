package edge

import (
	"bufio"
	"strings"

	"github.com/alouette/tts/pkg/tts/engine"
)

// ParseVoices reads edge-tts --list-voices output. Both the tabular layout
// of recent releases and the older "Key: value" blocks are understood.
func ParseVoices(out string) []engine.Voice {
	if strings.Contains(out, "ShortName:") {
		return parseBlocks(out)
	}
	return parseTable(out)
}

func parseTable(out string) []engine.Voice {
	var voices []engine.Voice
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] == "Name" || strings.HasPrefix(fields[0], "---") {
			continue
		}
		if v, ok := newVoice(fields[0], fields[1]); ok {
			voices = append(voices, v)
		}
	}
	return voices
}

func parseBlocks(out string) []engine.Voice {
	var (
		voices        []engine.Voice
		short, gender string
	)
	flush := func() {
		if v, ok := newVoice(short, gender); ok {
			voices = append(voices, v)
		}
		short, gender = "", ""
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Name":
			if short != "" {
				flush()
			}
		case "ShortName":
			short = strings.TrimSpace(value)
		case "Gender":
			gender = strings.TrimSpace(value)
		}
	}
	flush()
	return voices
}

// newVoice builds a voice from a short name like "fr-CA-SylvieNeural".
func newVoice(short, gender string) (engine.Voice, bool) {
	parts := strings.Split(short, "-")
	if len(parts) < 3 {
		return engine.Voice{}, false
	}
	locale := strings.Join(parts[:len(parts)-1], "-")
	name := strings.TrimSuffix(parts[len(parts)-1], "Neural")
	if name == "" {
		name = parts[len(parts)-1]
	}
	return engine.Voice{
		ID:           short,
		DisplayName:  name + " (" + locale + ")",
		LanguageCode: locale,
		Gender:       engine.ParseGender(gender),
		Quality:      engine.QualityNeural,
		IsNeural:     true,
	}, true
}
