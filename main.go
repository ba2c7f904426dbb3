// Package main provides the entry point for the alouette-tts CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/alouette/tts/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	v          = config.New()
	cfg        = config.Default()
	noCache    bool
	reporting  bool

	rootCmd = &cobra.Command{
		Use:   "alouette-tts",
		Short: "Speak text with the best speech engine on this machine",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text through %s, falling back to the %s when it is missing.",
				keyword("edge-tts"), keyword("system voice")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}
)

// loadConfig reads the config file, applies flags and environment and
// validates the result. The config command only needs the path.
func loadConfig(cmd *cobra.Command) error {
	used, err := config.Read(v, configFile)
	if err != nil {
		return err
	}
	configFile = used
	if v.ConfigFileUsed() != "" {
		log.Debug("Using configuration file", "path", used)
	} else if err := config.EnsureFile(used); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
	if cmd == configCmd {
		return nil
	}

	c, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = c
	if noCache {
		cfg.Cache.Enabled = false
	}
	return setupSentry(cfg.Sentry)
}

func setupSentry(c config.SentryConfig) error {
	if c.DSN == "" || reporting {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         c.DSN,
		Environment: c.Environment,
		Release:     config.AppName + "@" + Version,
	})
	if err != nil {
		return fmt.Errorf("initializing error reporting: %w", err)
	}
	reporting = true
	log.Debug("Error reporting enabled", "environment", c.Environment)
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()

	if reporting {
		if err != nil {
			sentry.CaptureException(err)
		}
		sentry.Flush(2 * time.Second)
	}
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is config.yml in the user config directory)")
	flags.StringP("engine", "e", d.Engine, "engine to use: process or native (default is the platform's recommendation)")
	flags.Bool("fallback", d.Fallback, "fall back to another engine when the chosen one cannot start")
	flags.Duration("timeout", d.Timeout, "per-call engine timeout (0 uses the engine's limit)")
	flags.Float64P("rate", "r", d.Voice.SpeechRate, "speech rate, 1.0 is normal")
	flags.Float64P("pitch", "p", d.Voice.Pitch, "pitch, 1.0 is normal")
	flags.Float64("volume", d.Voice.Volume, "volume between 0 and 1")
	flags.StringP("voice", "V", d.Voice.VoiceID, "voice id (see the voices command)")
	flags.String("format", d.Voice.AudioFormat, "audio format: mp3 or wav")
	flags.BoolVar(&noCache, "no-cache", false, "disable the synthesis cache")

	// Config bindings
	_ = v.BindPFlag("engine", flags.Lookup("engine"))
	_ = v.BindPFlag("fallback", flags.Lookup("fallback"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("voice.rate", flags.Lookup("rate"))
	_ = v.BindPFlag("voice.pitch", flags.Lookup("pitch"))
	_ = v.BindPFlag("voice.volume", flags.Lookup("volume"))
	_ = v.BindPFlag("voice.voice", flags.Lookup("voice"))
	_ = v.BindPFlag("voice.format", flags.Lookup("format"))

	rootCmd.AddCommand(speakCmd, synthCmd, voicesCmd, batchCmd, doctorCmd, serveCmd, configCmd)
}
