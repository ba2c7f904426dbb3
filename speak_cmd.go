package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alouette/tts/internal/audio"
	"github.com/alouette/tts/internal/sentence"
	"github.com/alouette/tts/pkg/tts"
)

var (
	ssml    bool
	outFile string

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT|-]",
		Short: "Speak text aloud",
		Long: paragraph(fmt.Sprintf("\n%s the arguments, or standard input when none are given. "+
			"Long text is split at sentence ends to fit the engine.", keyword("Speak"))),
		Example: paragraph("alouette-tts speak Hello there\necho 'Bonjour' | alouette-tts speak -V fr-FR-DeniseNeural"),
		RunE:    runSpeak,
	}

	synthCmd = &cobra.Command{
		Use:     "synth [TEXT|-] -o FILE",
		Short:   "Synthesize text to an audio file",
		Example: paragraph("alouette-tts synth -o hello.mp3 Hello there"),
		RunE:    runSynth,
	}
)

func init() {
	speakCmd.Flags().BoolVar(&ssml, "ssml", false, "treat the input as SSML")
	synthCmd.Flags().BoolVar(&ssml, "ssml", false, "treat the input as SSML")
	synthCmd.Flags().StringVarP(&outFile, "output", "o", "", "file to write; the extension is added when missing")
	_ = synthCmd.MarkFlagRequired("output")
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec
}

// readText joins args, or reads r when there are none or the only one is
// "-". Reading from an interactive terminal without input is refused.
func readText(args []string, r io.Reader, interactive bool) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	if len(args) == 0 && interactive {
		return "", errors.New("no text given: pass it as arguments or pipe it in")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("unable to read from reader: %w", err)
	}
	return string(b), nil
}

func runSpeak(cmd *cobra.Command, args []string) error {
	text, err := readText(args, os.Stdin, stdinIsTerminal())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if err := a.start(ctx, cfg.Voice); err != nil {
		return err
	}

	// Ctrl-C stops speech instead of failing the call.
	stop := context.AfterFunc(ctx, func() { _ = a.svc.Stop() })
	defer stop()

	if ssml {
		return a.svc.SpeakSSML(context.WithoutCancel(ctx), text)
	}
	chunks := chunksFor(a.svc, text)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return nil
		}
		log.Debug("Speaking", "chunk", i+1, "of", len(chunks),
			"estimate", sentence.EstimateDuration(chunk, a.svc.CurrentConfig().SpeechRate))
		if err := a.svc.Speak(context.WithoutCancel(ctx), chunk); err != nil {
			return err
		}
	}
	return nil
}

// chunksFor splits text to the active engine's length limit. Text that
// is only whitespace is passed through so the service can reject it.
func chunksFor(svc *tts.Service, text string) []string {
	caps, _ := svc.Capabilities()
	chunks := sentence.Chunk(text, caps.MaxTextLength)
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

func runSynth(cmd *cobra.Command, args []string) error {
	text, err := readText(args, os.Stdin, stdinIsTerminal())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if err := a.start(ctx, cfg.Voice); err != nil {
		return err
	}

	var data []byte
	if ssml {
		data, err = a.svc.SynthesizeSSMLToAudio(ctx, text)
	} else {
		data, err = a.svc.SynthesizeToAudio(ctx, text)
	}
	if err != nil {
		return err
	}

	path := withExtension(outFile, audio.Sniff(data))
	if err := a.svc.SaveAudioToFile(data, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s\n", humanize.Bytes(uint64(len(data))), path) //nolint:gosec
	return nil
}

// withExtension appends format to path when path has no extension.
func withExtension(path, format string) string {
	if filepath.Ext(path) != "" || format == "" {
		return path
	}
	return path + "." + format
}
