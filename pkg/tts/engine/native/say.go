package native

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/alouette/tts/internal/subprocess"
	"github.com/alouette/tts/pkg/tts/engine"
)

// say drives the macOS say command.
type say struct {
	cfg  Config
	exec subprocess.Executor
}

func newSay(cfg Config, exec subprocess.Executor) *say {
	return &say{cfg: cfg, exec: exec}
}

func (s *say) Name() string { return "say" }

func (s *say) binary() string {
	if s.cfg.Binary != "" {
		return s.cfg.Binary
	}
	return "say"
}

func (s *say) Available(ctx context.Context) bool {
	_, err := s.cfg.LookPath(s.binary())
	return err == nil
}

func (s *say) Version(ctx context.Context) string {
	out, err := s.exec.Run(ctx, subprocess.Command{Name: "sw_vers", Args: []string{"-productVersion"}})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Lines look like "Eddy (English (US)) en_US    # Hello! My name is Eddy."
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}_[A-Za-z0-9]{2,4})\s+#`)

func (s *say) Voices(ctx context.Context) ([]engine.Voice, error) {
	out, err := s.exec.Run(ctx, subprocess.Command{Name: s.binary(), Args: []string{"-v", "?"}})
	if err != nil {
		return nil, err
	}
	return parseSayVoices(string(out)), nil
}

func parseSayVoices(out string) []engine.Voice {
	var voices []engine.Voice
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		m := sayVoiceLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, engine.Voice{
			ID:           name,
			DisplayName:  name,
			LanguageCode: strings.ReplaceAll(m[2], "_", "-"),
			Gender:       engine.GenderUnspecified,
			Quality:      engine.QualityStandard,
		})
	}
	return voices
}

func (s *say) Synthesize(ctx context.Context, req engine.SynthesisRequest, p engine.Prosody) ([]byte, error) {
	return readTemp(s.cfg.TempDir, "alouette-say-*.wav", func(path string) error {
		_, err := s.exec.Run(ctx, subprocess.Command{
			Name:  s.binary(),
			Args:  sayArgs(req, p, path),
			Stdin: strings.NewReader(sayInput(req.Text, p.Volume)),
		})
		return err
	})
}

func sayArgs(req engine.SynthesisRequest, p engine.Prosody, out string) []string {
	args := []string{
		"-o", out,
		"--file-format=WAVE",
		"--data-format=LEI16@22050",
		"-r", strconv.Itoa(int(math.Round(175 * p.Rate))),
	}
	if req.VoiceID != "" {
		args = append(args, "-v", req.VoiceID)
	}
	return append(args, "-f", "-")
}

// sayInput embeds the volume as a speech command since say has no flag.
func sayInput(text string, volume float64) string {
	if volume >= 1 {
		return text
	}
	return fmt.Sprintf("[[volm %.2f]] %s", volume, text)
}

func (s *say) Stop() { s.exec.StopAll() }
