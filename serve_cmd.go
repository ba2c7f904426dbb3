package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/alouette/tts/internal/config"
	"github.com/alouette/tts/internal/queue"
	"github.com/alouette/tts/internal/sentence"
	"github.com/alouette/tts/pkg/tts/engine"
)

var (
	metricsAddr string
	queueSize   int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Speak lines from standard input as they arrive",
		Long: paragraph(fmt.Sprintf("\n%s each line read from standard input, in order. "+
			"Lines starting with a slash control playback: /pause, /resume, /skip, /stop, "+
			"/now TEXT, /ssml TEXT and /engine NAME. The config file is reloaded when it changes "+
			"and Prometheus metrics are served on --metrics-addr.", keyword("Speak"))),
		Example: paragraph("tail -f chat.log | alouette-tts serve --metrics-addr :9464"),
		Args:    cobra.NoArgs,
		RunE:    runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for /metrics (default from config, empty string in config disables)")
	serveCmd.Flags().IntVar(&queueSize, "queue", 64, "lines to hold before reading stops")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if err := a.start(ctx, cfg.Voice); err != nil {
		return err
	}

	addr := cfg.Metrics.Addr
	if cmd.Flags().Changed("metrics-addr") {
		addr = metricsAddr
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("Serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if used := v.ConfigFileUsed(); used != "" {
		go func() {
			err := config.Watch(ctx, used, 250*time.Millisecond, func(c config.Config) {
				if err := a.svc.UpdateConfig(c.Voice); err != nil {
					log.Warn("Could not apply reloaded config", "error", err)
				}
			})
			if err != nil {
				log.Warn("Config hot reload disabled", "error", err)
			}
		}()
	}

	s := newSpeaker(a, queueSize)
	go s.run(ctx)
	err = s.read(ctx, os.Stdin)
	s.q.Close()
	return err
}

func metricsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, a.svc.CurrentState().String()+"\n")
	})
	return mux
}

// speaker feeds queued lines to the service one at a time.
type speaker struct {
	app     *app
	q       *queue.Queue
	pending sync.WaitGroup
	seq     int
}

func newSpeaker(a *app, size int) *speaker {
	return &speaker{app: a, q: queue.New(size, 1<<20)}
}

func (s *speaker) run(ctx context.Context) {
	for {
		u, err := s.q.Dequeue(ctx)
		if err != nil {
			return
		}
		s.speak(ctx, u)
		s.pending.Done()
	}
}

func (s *speaker) speak(ctx context.Context, u queue.Utterance) {
	stop := context.AfterFunc(ctx, func() { _ = s.app.svc.Stop() })
	defer stop()

	var err error
	if u.SSML {
		err = s.app.svc.SpeakSSML(context.WithoutCancel(ctx), u.Text)
	} else {
		err = s.app.svc.Speak(context.WithoutCancel(ctx), u.Text)
	}
	if err != nil {
		log.Error("Speak failed", "id", u.ID, "error", err)
	}
}

// read handles lines from r until EOF or ctx is done. After EOF it waits
// for queued lines to be spoken.
func (s *speaker) read(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			s.drain(ctx)
			return nil
		case line := <-lines:
			if err := s.handle(ctx, line); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
					return nil
				}
				log.Warn("Ignoring line", "error", err)
			}
		}
	}
}

func (s *speaker) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// handle runs a control command or queues text.
func (s *speaker) handle(ctx context.Context, line string) error {
	cmd, arg := parseLine(line)
	svc := s.app.svc
	switch cmd {
	case "":
		return nil
	case "say":
		return s.enqueue(ctx, arg, false, false)
	case "now":
		return s.enqueue(ctx, arg, false, true)
	case "ssml":
		return s.enqueue(ctx, arg, true, false)
	case "pause":
		return svc.Pause()
	case "resume":
		return svc.Resume()
	case "skip":
		return svc.Stop()
	case "stop":
		for range s.q.Clear() {
			s.pending.Done()
		}
		return svc.Stop()
	case "engine":
		id, err := engine.ParseID(arg)
		if err != nil {
			return err
		}
		for range s.q.Clear() {
			s.pending.Done()
		}
		if err := svc.SwitchEngine(ctx, id); err != nil {
			return err
		}
		info, _ := svc.CurrentEngine()
		log.Info("Switched engine", "engine", info.ID)
		return nil
	}
	return fmt.Errorf("unknown command /%s", cmd)
}

func (s *speaker) enqueue(ctx context.Context, text string, ssml, priority bool) error {
	chunks := []string{text}
	if !ssml {
		chunks = chunksFor(s.app.svc, text)
	}
	for _, c := range chunks {
		s.seq++
		u := queue.Utterance{ID: fmt.Sprintf("line-%d", s.seq), Text: c, SSML: ssml}
		s.pending.Add(1)
		if err := s.q.Enqueue(ctx, u, priority); err != nil {
			s.pending.Done()
			return err
		}
		log.Debug("Queued", "id", u.ID, "priority", priority,
			"estimate", sentence.EstimateDuration(c, s.app.svc.CurrentConfig().SpeechRate))
	}
	return nil
}

// parseLine splits a control line such as "/engine native" into its
// command and argument. Plain text is returned as the "say" command, and
// a line starting with "//" is text with one slash removed.
func parseLine(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", ""
	case strings.HasPrefix(line, "//"):
		return "say", line[1:]
	case !strings.HasPrefix(line, "/"):
		return "say", line
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}
