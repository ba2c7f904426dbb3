package native

import (
	"bufio"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/alouette/tts/internal/subprocess"
	"github.com/alouette/tts/pkg/tts/engine"
)

// espeak drives espeak-ng, or classic espeak when that is all there is.
type espeak struct {
	cfg  Config
	exec subprocess.Executor
}

func newEspeak(cfg Config, exec subprocess.Executor) *espeak {
	return &espeak{cfg: cfg, exec: exec}
}

func (e *espeak) Name() string { return "espeak-ng" }

func (e *espeak) binary() string {
	if e.cfg.Binary != "" {
		return e.cfg.Binary
	}
	for _, bin := range []string{"espeak-ng", "espeak"} {
		if _, err := e.cfg.LookPath(bin); err == nil {
			return bin
		}
	}
	return "espeak-ng"
}

func (e *espeak) Available(ctx context.Context) bool {
	_, err := e.cfg.LookPath(e.binary())
	return err == nil
}

// Version parses "eSpeak NG text-to-speech: 1.51  Data at: ...".
func (e *espeak) Version(ctx context.Context) string {
	out, err := e.exec.Run(ctx, subprocess.Command{Name: e.binary(), Args: []string{"--version"}})
	if err != nil {
		return ""
	}
	_, rest, ok := strings.Cut(string(out), ":")
	if !ok {
		return strings.TrimSpace(string(out))
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func (e *espeak) Voices(ctx context.Context) ([]engine.Voice, error) {
	out, err := e.exec.Run(ctx, subprocess.Command{Name: e.binary(), Args: []string{"--voices"}})
	if err != nil {
		return nil, err
	}
	return parseEspeakVoices(string(out)), nil
}

// parseEspeakVoices reads the --voices table:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US     (en 3)
func parseEspeakVoices(out string) []engine.Voice {
	var voices []engine.Voice
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		lang := fields[1]
		if seen[lang] {
			continue
		}
		seen[lang] = true

		_, gender, _ := strings.Cut(fields[2], "/")
		voices = append(voices, engine.Voice{
			ID:           lang,
			DisplayName:  strings.ReplaceAll(fields[3], "_", " "),
			LanguageCode: lang,
			Gender:       engine.ParseGender(gender),
			Quality:      engine.QualityStandard,
		})
	}
	return voices
}

func (e *espeak) Synthesize(ctx context.Context, req engine.SynthesisRequest, p engine.Prosody) ([]byte, error) {
	return e.exec.Run(ctx, subprocess.Command{
		Name:  e.binary(),
		Args:  espeakArgs(req, p),
		Stdin: strings.NewReader(req.Text),
	})
}

func espeakArgs(req engine.SynthesisRequest, p engine.Prosody) []string {
	args := []string{
		"--stdout",
		"-s", strconv.Itoa(int(math.Round(175 * p.Rate))),
		"-p", strconv.Itoa(clampInt(int(math.Round(50*p.Pitch)), 0, 99)),
		"-a", strconv.Itoa(clampInt(int(math.Round(100*p.Volume)), 0, 200)),
	}
	if req.VoiceID != "" {
		args = append(args, "-v", req.VoiceID)
	}
	if req.SSML {
		args = append(args, "-m")
	}
	return args
}

func (e *espeak) Stop() { e.exec.StopAll() }

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
