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

// sapi drives System.Speech through PowerShell. Text travels on stdin and
// settings through the environment so nothing needs quoting.
type sapi struct {
	cfg  Config
	exec subprocess.Executor
}

func newSAPI(cfg Config, exec subprocess.Executor) *sapi {
	return &sapi{cfg: cfg, exec: exec}
}

const sapiSpeakScript = `Add-Type -AssemblyName System.Speech
$s = New-Object System.Speech.Synthesis.SpeechSynthesizer
$s.Rate = [int]$env:ALOUETTE_RATE
$s.Volume = [int]$env:ALOUETTE_VOLUME
if ($env:ALOUETTE_VOICE) { $s.SelectVoice($env:ALOUETTE_VOICE) }
$s.SetOutputToWaveFile($env:ALOUETTE_OUT)
$text = [Console]::In.ReadToEnd()
if ($env:ALOUETTE_SSML -eq '1') { $s.SpeakSsml($text) } else { $s.Speak($text) }
$s.Dispose()`

const sapiVoicesScript = `Add-Type -AssemblyName System.Speech
$s = New-Object System.Speech.Synthesis.SpeechSynthesizer
$s.GetInstalledVoices() | ForEach-Object { $v = $_.VoiceInfo; "{0}|{1}|{2}" -f $v.Name, $v.Culture.Name, $v.Gender }
$s.Dispose()`

func (w *sapi) Name() string { return "sapi" }

func (w *sapi) binary() string {
	if w.cfg.Binary != "" {
		return w.cfg.Binary
	}
	return "powershell"
}

func (w *sapi) Available(ctx context.Context) bool {
	_, err := w.cfg.LookPath(w.binary())
	return err == nil
}

func (w *sapi) Version(ctx context.Context) string {
	out, err := w.exec.Run(ctx, w.command("[System.Environment]::OSVersion.Version.ToString()"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (w *sapi) command(script string) subprocess.Command {
	return subprocess.Command{
		Name: w.binary(),
		Args: []string{"-NoProfile", "-NonInteractive", "-Command", script},
	}
}

func (w *sapi) Voices(ctx context.Context) ([]engine.Voice, error) {
	out, err := w.exec.Run(ctx, w.command(sapiVoicesScript))
	if err != nil {
		return nil, err
	}
	return parseSAPIVoices(string(out)), nil
}

func parseSAPIVoices(out string) []engine.Voice {
	var voices []engine.Voice
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), "|")
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		voices = append(voices, engine.Voice{
			ID:           parts[0],
			DisplayName:  parts[0],
			LanguageCode: parts[1],
			Gender:       engine.ParseGender(parts[2]),
			Quality:      engine.QualityStandard,
		})
	}
	return voices
}

func (w *sapi) Synthesize(ctx context.Context, req engine.SynthesisRequest, p engine.Prosody) ([]byte, error) {
	return readTemp(w.cfg.TempDir, "alouette-sapi-*.wav", func(path string) error {
		cmd := w.command(sapiSpeakScript)
		cmd.Stdin = strings.NewReader(req.Text)
		cmd.Env = sapiEnv(req, p, path)
		_, err := w.exec.Run(ctx, cmd)
		return err
	})
}

// sapiEnv maps a 1.0-centred rate onto SAPI's -10..10 scale and volume
// onto 0..100.
func sapiEnv(req engine.SynthesisRequest, p engine.Prosody, out string) []string {
	ssml := "0"
	if req.SSML {
		ssml = "1"
	}
	return []string{
		"ALOUETTE_RATE=" + strconv.Itoa(clampInt(int(math.Round((p.Rate-1)*10)), -10, 10)),
		"ALOUETTE_VOLUME=" + strconv.Itoa(clampInt(int(math.Round(p.Volume*100)), 0, 100)),
		"ALOUETTE_VOICE=" + req.VoiceID,
		"ALOUETTE_OUT=" + out,
		"ALOUETTE_SSML=" + ssml,
	}
}

func (w *sapi) Stop() { w.exec.StopAll() }
