package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/speech-async/internal/metrics"
)

// Submitter starts a long-running recognition.
type Submitter interface {
	AsyncRecognize(ctx context.Context, req RecognizeRequest) (*Operation, error)
}

// ResultStore persists the final operation payload.
type ResultStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Type() string
}

// Notifier announces a finished operation.
type Notifier interface {
	PublishDone(ctx context.Context, name, storedKey string) error
}

// RunnerOptions configures a Runner. Store and Notifier are optional.
type RunnerOptions struct {
	Submitter Submitter
	Poller    *Poller
	Out       io.Writer
	Store     ResultStore
	Notifier  Notifier
	Log       zerolog.Logger
}

// Runner drives one transcription: submit, print the handle response, poll
// until done, print the final payload.
type Runner struct {
	opts RunnerOptions
	log  zerolog.Logger
}

func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{opts: opts, log: opts.Log}
}

// Run submits req and returns the completed operation once it has been
// printed (and stored/announced when those sinks are configured).
func (r *Runner) Run(ctx context.Context, req RecognizeRequest) (*Operation, error) {
	metrics.LastRunSuccess.Set(0)

	// 1. Submit
	op, err := r.opts.Submitter.AsyncRecognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("asyncrecognize: %w", err)
	}
	if err := r.print(op); err != nil {
		return nil, err
	}
	r.log.Info().
		Str("operation", op.Name).
		Str("encoding", string(req.Config.Encoding)).
		Int("sample_rate", req.Config.SampleRate).
		Str("language_code", req.Config.LanguageCode).
		Msg("recognition started")

	// 2. Poll until done
	final, err := r.opts.Poller.Wait(ctx, op.Name)
	if err != nil {
		return nil, fmt.Errorf("poll operation %s: %w", op.Name, err)
	}
	if err := r.print(final); err != nil {
		return nil, err
	}

	// 3. Optional sinks
	var key string
	if r.opts.Store != nil {
		key = ResultKey(op.Name)
		if err := r.opts.Store.Save(ctx, key, final.Raw, "application/json"); err != nil {
			return nil, fmt.Errorf("store result (%s): %w", r.opts.Store.Type(), err)
		}
		r.log.Info().Str("key", key).Str("store", r.opts.Store.Type()).Msg("result stored")
	}
	if r.opts.Notifier != nil {
		if err := r.opts.Notifier.PublishDone(ctx, op.Name, key); err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
	}

	metrics.LastRunSuccess.Set(1)
	return final, nil
}

// print writes the payload as a single line of JSON, as received.
func (r *Runner) print(op *Operation) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, op.Raw); err != nil {
		return fmt.Errorf("compact response: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := r.opts.Out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// ResultKey maps an operation name to a storage key, e.g. "1234" → "1234.json".
// The name is cleaned so it cannot escape the store root.
func ResultKey(name string) string {
	return strings.TrimLeft(path.Clean("/"+name), "/") + ".json"
}
