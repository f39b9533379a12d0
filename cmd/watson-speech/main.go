package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gammazero/workerpool"
	json "github.com/goccy/go-json"

	"github.com/vango-go/watson-speech/internal/dotenv"
	"github.com/vango-go/watson-speech/pkg/config"
	"github.com/vango-go/watson-speech/pkg/core/transport"
	"github.com/vango-go/watson-speech/pkg/core/voice/audio"
	"github.com/vango-go/watson-speech/pkg/core/voice/stt"
	"github.com/vango-go/watson-speech/pkg/core/voice/tts"
)

const usage = `usage:
  watson-speech recognize [-config FILE] [-content-type T] [-model M] [-interim] [-json] FILE...
  watson-speech synthesize [-config FILE] -text TEXT [-voice V] [-accept A] [-o FILE]
`

var errUsage = errors.New("invalid usage")

type speechDeps struct {
	loadConfig   func(path string) (config.Config, error)
	dial         transport.DialFunc
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultSpeechDeps() speechDeps {
	return speechDeps{
		loadConfig: loadConfig,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

func recognizeSessionConfig(cfg config.Config, url string, logger *slog.Logger, dial transport.DialFunc) stt.SessionConfig {
	drain := cfg.DrainInterval
	if drain == 0 {
		drain = -1
	}
	return stt.SessionConfig{
		URL:                url,
		Header:             cfg.Headers(),
		ProxyHost:          cfg.ProxyHost,
		ProxyPort:          cfg.ProxyPort,
		InsecureSkipVerify: cfg.DisableSSLVerification,
		HandshakeTimeout:   cfg.HandshakeTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		CloseTimeout:       cfg.CloseTimeout,
		ReadLimit:          cfg.ReadLimit,
		ChunkSize:          cfg.ChunkSize,
		DrainInterval:      drain,
		Logger:             logger,
		Dial:               dial,
	}
}

func synthesizeSessionConfig(cfg config.Config, url string, logger *slog.Logger, dial transport.DialFunc) tts.SessionConfig {
	settle := cfg.SendSettleDelay
	if settle == 0 {
		settle = -1
	}
	return tts.SessionConfig{
		URL:                url,
		Header:             cfg.Headers(),
		ProxyHost:          cfg.ProxyHost,
		ProxyPort:          cfg.ProxyPort,
		InsecureSkipVerify: cfg.DisableSSLVerification,
		HandshakeTimeout:   cfg.HandshakeTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		CloseTimeout:       cfg.CloseTimeout,
		ReadLimit:          cfg.ReadLimit,
		SendSettleDelay:    settle,
		Logger:             logger,
		Dial:               dial,
	}
}

// lockedWriter serializes output from concurrent sessions.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type transcriptLine struct {
	File       string   `json:"file"`
	Transcript string   `json:"transcript"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// transcriptCollector prints final transcripts and keeps the first error.
type transcriptCollector struct {
	stt.NopRecognizeListener

	file   string
	out    io.Writer
	asJSON bool
	logger *slog.Logger

	mu  sync.Mutex
	err error
}

func (c *transcriptCollector) OnTranscription(transcripts []stt.Transcript) {
	if len(transcripts) == 0 {
		return
	}
	best := transcripts[0]
	if c.asJSON {
		data, err := json.Marshal(transcriptLine{File: c.file, Transcript: best.Transcript, Confidence: best.Confidence})
		if err != nil {
			c.setErr(err)
			return
		}
		fmt.Fprintf(c.out, "%s\n", data)
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", c.file, best.Transcript)
}

func (c *transcriptCollector) OnInactivityTimeout(err error) {
	c.logger.Warn("inactivity timeout", "file", c.file, "error", err)
}

func (c *transcriptCollector) OnError(err error) {
	c.setErr(err)
}

func (c *transcriptCollector) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *transcriptCollector) firstErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func runRecognize(ctx context.Context, args []string, stdout, stderr io.Writer, deps speechDeps) error {
	fs := flag.NewFlagSet("recognize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	contentType := fs.String("content-type", "", "audio content type (detected when empty)")
	model := fs.String("model", "", "recognition model")
	customizationID := fs.String("language-customization-id", "", "custom language model")
	interim := fs.Bool("interim", false, "request interim results")
	asJSON := fs.Bool("json", false, "print JSON lines")
	maxAlternatives := fs.Int("max-alternatives", 0, "alternatives per result")
	inactivity := fs.Int("inactivity-timeout", 0, "seconds of silence before the service gives up; -1 disables")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(stderr, "recognize: at least one audio file is required")
		return errUsage
	}

	cfg, err := deps.loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(stderr, cfg)

	url, err := stt.BuildURL(cfg.STTURL, stt.URLParams{
		Model:                   *model,
		LanguageCustomizationID: *customizationID,
	})
	if err != nil {
		return err
	}
	sessionCfg := recognizeSessionConfig(cfg, url, logger, deps.dial)

	opts := stt.RecognizeOptions{ContentType: *contentType}
	if *interim {
		opts.InterimResults = stt.Ptr(true)
	}
	if *maxAlternatives > 0 {
		opts.MaxAlternatives = stt.Ptr(*maxAlternatives)
	}
	if *inactivity != 0 {
		opts.InactivityTimeout = stt.Ptr(*inactivity)
	}

	out := &lockedWriter{w: stdout}
	var (
		mu   sync.Mutex
		errs []error
	)
	pool := workerpool.New(cfg.Parallelism)
	for _, file := range files {
		file := file
		pool.Submit(func() {
			if err := recognizeFile(ctx, file, opts, sessionCfg, out, *asJSON, logger); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", file, err))
				mu.Unlock()
			}
		})
	}
	pool.StopWait()
	return errors.Join(errs...)
}

func recognizeFile(ctx context.Context, path string, opts stt.RecognizeOptions, sessionCfg stt.SessionConfig, out io.Writer, asJSON bool, logger *slog.Logger) error {
	if opts.ContentType == "" {
		ct, ok, err := audio.DetectFileContentType(path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cannot detect audio content type; pass -content-type")
		}
		opts.ContentType = ct
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	started := time.Now()
	collector := &transcriptCollector{
		file:   filepath.Base(path),
		out:    out,
		asJSON: asJSON,
		logger: logger,
	}
	sess, err := stt.Recognize(ctx, audio.NewReaderSource(f), opts, collector, sessionCfg)
	if err != nil {
		return err
	}
	waitErr := sess.Wait()
	logger.Debug("recognized file", "file", path, "session_id", sess.ID(), "content_type", opts.ContentType, "elapsed", time.Since(started))

	if err := collector.firstErr(); err != nil {
		return err
	}
	return waitErr
}

// audioWriter writes the synthesized stream and keeps the first error.
type audioWriter struct {
	tts.NopSynthesizeListener

	out    io.Writer
	logger *slog.Logger

	mu    sync.Mutex
	err   error
	bytes int64
}

func (a *audioWriter) OnContentType(contentType string) {
	a.logger.Info("synthesizing", "content_type", contentType)
}

func (a *audioWriter) OnTimingInformation(timing tts.TimingInformation) {
	for _, w := range timing.Words {
		a.logger.Debug("word", "word", w.Word, "start", w.Start, "end", w.End)
	}
}

func (a *audioWriter) OnAudioStream(chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return
	}
	n, err := a.out.Write(chunk)
	a.bytes += int64(n)
	if err != nil {
		a.err = err
	}
}

func (a *audioWriter) OnError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

func (a *audioWriter) result() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes, a.err
}

func runSynthesize(ctx context.Context, args []string, stdout, stderr io.Writer, deps speechDeps) error {
	fs := flag.NewFlagSet("synthesize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	text := fs.String("text", "", "text or SSML to synthesize")
	voice := fs.String("voice", "", "voice name")
	customizationID := fs.String("customization-id", "", "custom voice model")
	accept := fs.String("accept", "audio/wav", "audio format")
	timings := fs.Bool("timings", false, "request word timings")
	output := fs.String("o", "", "output file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *text == "" {
		fmt.Fprintln(stderr, "synthesize: -text is required")
		return errUsage
	}

	cfg, err := deps.loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(stderr, cfg)

	url, err := tts.BuildURL(cfg.TTSURL, tts.URLParams{Voice: *voice, CustomizationID: *customizationID})
	if err != nil {
		return err
	}

	out := stdout
	if *output != "" && *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	opts := tts.SynthesizeOptions{Text: *text, Accept: *accept}
	if *timings {
		opts.Timings = []string{"words"}
	}

	writer := &audioWriter{out: out, logger: logger}
	sess, err := tts.Synthesize(ctx, opts, writer, synthesizeSessionConfig(cfg, url, logger, deps.dial))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = sess.Close()
	}()
	waitErr := sess.Wait()

	n, err := writer.result()
	if err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}
	logger.Info("synthesis complete", "session_id", sess.ID(), "bytes", n)
	return nil
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps speechDeps) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if deps.loadConfig == nil {
		deps.loadConfig = loadConfig
	}

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "watson-speech: %v\n", err)
		return 1
	}

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if deps.signalNotify != nil && deps.signalStop != nil {
		sigCh := make(chan os.Signal, 1)
		deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer deps.signalStop(sigCh)
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	var err error
	switch args[0] {
	case "recognize":
		err = runRecognize(ctx, args[1:], stdout, stderr, deps)
	case "synthesize":
		err = runSynthesize(ctx, args[1:], stdout, stderr, deps)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "watson-speech: unknown command %q\n", args[0])
		fmt.Fprint(stderr, usage)
		return 2
	}

	if errors.Is(err, errUsage) {
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "watson-speech: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultSpeechDeps()))
}
