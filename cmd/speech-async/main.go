package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/snarg/speech-async/internal/auth"
	"github.com/snarg/speech-async/internal/config"
	"github.com/snarg/speech-async/internal/metrics"
	"github.com/snarg/speech-async/internal/mqttclient"
	"github.com/snarg/speech-async/internal/storage"
	"github.com/snarg/speech-async/internal/transcribe"
)

var version = "dev"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// newHTTPClient is swapped in tests to skip real token exchange.
var newHTTPClient = auth.NewHTTPClient

func main() {
	// SIGINT/SIGTERM are the only way to stop a running poll.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cliArgs struct {
	inputURI     string
	encoding     transcribe.Encoding
	sampleRate   int
	languageCode string
	overrides    config.Overrides
}

// usageError marks problems with the command line itself.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func parseArgs(args []string, stderr io.Writer) (*cliArgs, error) {
	fs := pflag.NewFlagSet("speech-async", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: speech-async [flags] gs://bucket/path\n\n")
		fmt.Fprintf(stderr, "Transcribe a Cloud Storage audio file with the asynchronous Speech API.\n\n")
		fs.PrintDefaults()
	}

	var (
		a        cliArgs
		encoding string
	)
	fs.StringVar(&encoding, "encoding", string(transcribe.DefaultEncoding),
		"How the audio file is encoded: "+encodingChoices())
	fs.IntVar(&a.sampleRate, "sample_rate", transcribe.DefaultSampleRate, "Sample rate of the audio in Hz")
	fs.StringVar(&a.languageCode, "languageCode", transcribe.DefaultLanguageCode, "BCP-47 language tag of the speech")

	fs.StringVar(&a.overrides.EnvFile, "env-file", "", "Path to .env file (default .env)")
	fs.StringVar(&a.overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&a.overrides.CredentialsFile, "credentials", "", "Service account or user credentials JSON (overrides GOOGLE_APPLICATION_CREDENTIALS)")
	fs.StringVar(&a.overrides.SpeechEndpoint, "endpoint", "", "Speech API base URL")
	fs.StringVar(&a.overrides.OutputDir, "output-dir", "", "Also write the final result under this directory")
	fs.StringVar(&a.overrides.MetricsTextfile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, &usageError{err}
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, &usageError{fmt.Errorf("expected exactly one input_uri, got %d", fs.NArg())}
	}
	a.inputURI = fs.Arg(0)
	if err := transcribe.ValidateURI(a.inputURI); err != nil {
		return nil, &usageError{err}
	}

	enc, err := transcribe.ParseEncoding(encoding)
	if err != nil {
		return nil, &usageError{err}
	}
	a.encoding = enc

	return &a, nil
}

func encodingChoices() string {
	names := make([]string, len(transcribe.Encodings))
	for i, e := range transcribe.Encodings {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// Arguments: everything here is checked before any network activity.
	a, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "speech-async: error: %v\n", err)
		return exitUsage
	}

	// Config
	cfg, err := config.Load(a.overrides)
	if err != nil {
		early := zerolog.New(stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("failed to load config")
		return exitError
	}

	// Logger (stderr: stdout carries the JSON payloads)
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(stderr).With().Timestamp().Logger().Level(level)
	log.Debug().Str("version", version).Msg("speech-async starting")

	if cfg.MetricsTextfile != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
				log.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("failed to write metrics textfile")
			}
		}()
	}

	if err := execute(ctx, cfg, a, stdout, log); err != nil {
		log.Error().Err(err).Msg("transcription failed")
		return exitError
	}
	return exitOK
}

func execute(ctx context.Context, cfg *config.Config, a *cliArgs, stdout io.Writer, log zerolog.Logger) error {
	// Result sinks are set up first so a misconfigured sink fails before
	// a recognition job is started.
	store, err := storage.New(cfg.S3, cfg.OutputDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		return err
	}

	opts := transcribe.RunnerOptions{
		Out: stdout,
		Log: log.With().Str("component", "runner").Logger(),
	}
	if store != nil {
		opts.Store = store
	}

	if cfg.MQTT.Enabled() {
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			Topic:     cfg.MQTT.Topic,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			return err
		}
		defer mqtt.Close()
		opts.Notifier = mqtt
	}

	// Credentials
	httpClient, err := newHTTPClient(ctx, cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	speechLog := log.With().Str("component", "speech").Logger()
	client := transcribe.NewClient(cfg.SpeechEndpoint, httpClient, speechLog)
	opts.Submitter = client
	opts.Poller = transcribe.NewPoller(client, cfg.PollInterval, speechLog)

	req := transcribe.NewRecognizeRequest(a.inputURI, a.encoding, a.sampleRate, a.languageCode)
	_, err = transcribe.NewRunner(opts).Run(ctx, req)
	return err
}
