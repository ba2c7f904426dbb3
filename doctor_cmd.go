package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alouette/tts/internal/cache"
	"github.com/alouette/tts/pkg/tts/engine"
)

var (
	doctorJSON bool

	doctorCmd = &cobra.Command{
		Use:   "doctor",
		Short: "Report the platform, engines and their capabilities",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
)

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print JSON")
}

type report struct {
	Platform    string         `json:"platform"`
	Version     string         `json:"version"`
	HostEngines []string       `json:"host_engines"`
	Recommended engine.ID      `json:"recommended"`
	Engines     []engineReport `json:"engines"`
	AudioDevice bool           `json:"audio_device"`
	ConfigFile  string         `json:"config_file"`
	Cache       *cacheReport   `json:"cache,omitempty"`
}

type engineReport struct {
	ID            engine.ID `json:"id"`
	Available     bool      `json:"available"`
	Features      []string  `json:"features"`
	MaxTextLength int       `json:"max_text_length"`
	AudioFormats  []string  `json:"audio_formats"`
	RateRange     []float64 `json:"rate_range"`
	PitchRange    []float64 `json:"pitch_range"`
	Timeout       string    `json:"timeout"`
}

type cacheReport struct {
	Dir    string      `json:"dir,omitempty"`
	Memory cache.Stats `json:"memory"`
	Disk   cache.Stats `json:"disk"`
}

var allFeatures = []engine.Feature{
	engine.FeatureSSML,
	engine.FeaturePauseResume,
	engine.FeatureRateControl,
	engine.FeaturePitchControl,
	engine.FeatureVolumeControl,
	engine.FeatureConcurrentSynthesis,
}

func buildReport(ctx context.Context, a *app) report {
	detector := a.matrix.Detector()
	r := report{
		Platform:    a.matrix.Platform().String(),
		Version:     detector.PlatformVersion(ctx),
		HostEngines: detector.HostEngines(ctx),
		Recommended: a.matrix.Recommended(ctx),
		AudioDevice: a.player != nil,
		ConfigFile:  configFile,
	}

	available := a.matrix.AvailableEngines(ctx)
	for _, id := range a.matrix.Candidates() {
		caps, _ := a.matrix.Capabilities(id)
		er := engineReport{
			ID:            id,
			Available:     slices.Contains(available, id),
			MaxTextLength: caps.MaxTextLength,
			AudioFormats:  caps.AudioFormats,
			RateRange:     []float64{caps.RateRange.Min, caps.RateRange.Max},
			PitchRange:    []float64{caps.PitchRange.Min, caps.PitchRange.Max},
			Timeout:       caps.Timeout.String(),
		}
		for _, f := range allFeatures {
			if caps.Supports(f) {
				er.Features = append(er.Features, string(f))
			}
		}
		r.Engines = append(r.Engines, er)
	}

	if a.cache != nil {
		mem, disk := a.cache.Stats()
		r.Cache = &cacheReport{Dir: cfg.Cache.Dir, Memory: mem, Disk: disk}
	}
	return r
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	r := buildReport(cmd.Context(), a)
	w := cmd.OutOrStdout()
	if doctorJSON {
		b, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	_, err = io.WriteString(w, renderReport(r))
	return err
}

func renderReport(r report) string {
	var b, sys strings.Builder
	b.WriteString(headingStyle.Render("Platform") + "\n")
	row := rowTo(&sys)
	row("platform", r.Platform)
	row("version", r.Version)
	row("host engines", orNone(strings.Join(r.HostEngines, ", ")))
	row("audio device", check(r.AudioDevice))
	row("config", orNone(r.ConfigFile))
	b.WriteString(sectionStyle.Render(strings.TrimRight(sys.String(), "\n")) + "\n\n")

	b.WriteString(headingStyle.Render("Engines") + "\n")
	for _, e := range r.Engines {
		var eb strings.Builder
		row = rowTo(&eb)
		title := fmt.Sprintf("%s %s", check(e.Available), keyword(string(e.ID)))
		if e.ID == r.Recommended {
			title += labelStyle.Render(" (recommended)")
		}
		eb.WriteString(title + "\n")
		row("features", orNone(strings.Join(e.Features, ", ")))
		row("formats", strings.Join(e.AudioFormats, ", "))
		row("max text", fmt.Sprintf("%d characters", e.MaxTextLength))
		row("rate", fmt.Sprintf("%.1f to %.1f", e.RateRange[0], e.RateRange[1]))
		row("pitch", fmt.Sprintf("%.1f to %.1f", e.PitchRange[0], e.PitchRange[1]))
		row("timeout", e.Timeout)
		b.WriteString(sectionStyle.Render(strings.TrimRight(eb.String(), "\n")) + "\n")
	}

	if r.Cache != nil {
		var cb strings.Builder
		row = rowTo(&cb)
		row("dir", orNone(r.Cache.Dir))
		row("memory", statsLine(r.Cache.Memory))
		row("disk", statsLine(r.Cache.Disk))
		b.WriteString("\n" + headingStyle.Render("Cache") + "\n")
		b.WriteString(sectionStyle.Render(strings.TrimRight(cb.String(), "\n")) + "\n")
	}
	return b.String()
}

func rowTo(b *strings.Builder) func(label, value string) {
	return func(label, value string) {
		fmt.Fprintf(b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label)), value)
	}
}

func statsLine(s cache.Stats) string {
	if s.Capacity == 0 {
		return "off"
	}
	return fmt.Sprintf("%s of %s, %s items, %.0f%% hits",
		humanize.Bytes(uint64(s.Size)), humanize.Bytes(uint64(s.Capacity)), //nolint:gosec
		humanize.Comma(int64(s.Items)), s.HitRate()*100)
}

func orNone(s string) string {
	if s == "" {
		return labelStyle.Render("none")
	}
	return s
}
