package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alouette/tts/pkg/tts/engine"
)

var (
	voicesLang string
	voicesJSON bool

	voicesCmd = &cobra.Command{
		Use:     "voices",
		Short:   "List the voices of the active engine",
		Example: paragraph("alouette-tts voices --lang fr\nalouette-tts voices -e native --json"),
		Args:    cobra.NoArgs,
		RunE:    runVoices,
	}
)

func init() {
	voicesCmd.Flags().StringVarP(&voicesLang, "lang", "l", "", "only voices for this language, e.g. fr or en-GB")
	voicesCmd.Flags().BoolVar(&voicesJSON, "json", false, "print JSON")
}

func runVoices(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if err := a.start(ctx, cfg.Voice); err != nil {
		return err
	}

	var list []engine.Voice
	if voicesLang != "" {
		list, err = a.svc.VoicesByLanguage(ctx, voicesLang)
	} else {
		list, err = a.svc.AvailableVoices(ctx)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if voicesJSON {
		b, err := sonic.ConfigStd.MarshalIndent(list, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding voices: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	if len(list) == 0 {
		_, err = fmt.Fprintln(w, "No voices found.")
		return err
	}
	return renderVoices(w, list, terminalWidth())
}

func terminalWidth() int {
	if term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 { //nolint:gosec
			return w
		}
	}
	return 100
}

// renderVoices writes an aligned table of voices no wider than width.
// The name column absorbs the remaining space and is truncated to fit.
func renderVoices(w io.Writer, list []engine.Voice, width int) error {
	header := []string{"ID", "LANGUAGE", "GENDER", "QUALITY", "NAME"}
	rows := make([][]string, 0, len(list))
	for _, v := range list {
		rows = append(rows, []string{v.ID, v.LanguageCode, string(v.Gender), string(v.Quality), v.DisplayName})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	const gap = 2
	used := 0
	for _, cw := range widths[:len(widths)-1] {
		used += cw + gap
	}
	nameWidth := max(width-used, len(header[len(header)-1]))

	line := func(cells []string) error {
		var b strings.Builder
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(truncate.StringWithTail(cell, uint(nameWidth), "…")) //nolint:gosec
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]+gap))
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
		return err
	}

	if err := line(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := line(r); err != nil {
			return err
		}
	}
	return nil
}
