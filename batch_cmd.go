package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alouette/tts/pkg/tts"
)

var (
	batchOutDir string

	batchCmd = &cobra.Command{
		Use:   "batch REQUESTS.json",
		Short: "Synthesize a list of requests to files",
		Long: paragraph(fmt.Sprintf("\n%s every request in the JSON file in order, writing one audio file per success. "+
			"A failed request does not stop the rest.", keyword("Synthesize"))),
		Example: paragraph(`alouette-tts batch lines.json --out-dir out

[{"name": "intro", "text": "Hello"}, {"text": "Bonjour", "voice": "fr-FR-DeniseNeural", "rate": 0.9}]`),
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}
)

func init() {
	batchCmd.Flags().StringVarP(&batchOutDir, "out-dir", "d", ".", "directory for the audio files")
}

// batchItem is one entry of a batch file. Unset prosody fields keep the
// configured values.
type batchItem struct {
	Name   string   `json:"name,omitempty"`
	Text   string   `json:"text"`
	SSML   bool     `json:"ssml,omitempty"`
	Voice  string   `json:"voice,omitempty"`
	Format string   `json:"format,omitempty"`
	Rate   *float64 `json:"rate,omitempty"`
	Pitch  *float64 `json:"pitch,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

func (b batchItem) request() tts.Request {
	var opts []tts.Option
	if b.Voice != "" {
		opts = append(opts, tts.WithVoice(b.Voice))
	}
	if b.Format != "" {
		opts = append(opts, tts.WithFormat(b.Format))
	}
	if b.Rate != nil {
		opts = append(opts, tts.WithRate(*b.Rate))
	}
	if b.Pitch != nil {
		opts = append(opts, tts.WithPitch(*b.Pitch))
	}
	if b.Volume != nil {
		opts = append(opts, tts.WithVolume(*b.Volume))
	}
	return tts.Request{Text: b.Text, SSML: b.SSML, Options: opts}
}

// fileName returns the output file for the item at index i.
func (b batchItem) fileName(i int, format string) string {
	name := b.Name
	if name == "" {
		name = fmt.Sprintf("%03d", i+1)
	}
	return withExtension(filepath.Base(name), format)
}

func parseBatch(data []byte) ([]batchItem, error) {
	var items []batchItem
	if err := sonic.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding batch file: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("batch file has no requests")
	}
	return items, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("unable to read batch file: %w", err)
	}
	items, err := parseBatch(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
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

	reqs := make([]tts.Request, len(items))
	for i, item := range items {
		reqs[i] = item.request()
	}

	var (
		failed int
		total  uint64
	)
	for _, res := range a.svc.ProcessBatch(ctx, reqs) {
		if res.Err == nil {
			path := filepath.Join(batchOutDir, items[res.Index].fileName(res.Index, res.Format))
			res.Err = a.svc.SaveAudioToFile(res.Audio, path)
			if res.Err == nil {
				total += uint64(len(res.Audio))
				log.Info("Wrote audio", "index", res.Index, "path", path)
				continue
			}
		}
		failed++
		log.Error("Request failed", "index", res.Index, "name", items[res.Index].Name, "error", res.Err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Synthesized %d of %d requests (%s) into %s\n",
		len(items)-failed, len(items), humanize.Bytes(total), batchOutDir)
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(items))
	}
	return nil
}
