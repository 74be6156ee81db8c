package postprocess

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	"github.com/GriffinCanCode/tapedeck/internal/resilience"
	"github.com/GriffinCanCode/tapedeck/internal/segment"
	"github.com/GriffinCanCode/tapedeck/internal/trace"
)

// Result reports the outcome for one completed track.
type Result struct {
	Track    segment.Completed
	Output   string // encoded file; empty on failure
	Uploaded bool
	Err      error
}

// Options configures a Processor.
type Options struct {
	Format     audio.Format
	Container  segment.Container
	TrackTotal int
	KeepRaw    bool
	Retry      resilience.RetryConfig
	Uploader   Uploader // optional
	KeyPrefix  string   // object key prefix, e.g. the playlist name
	OnResult   func(Result)
}

// Processor consumes completed tracks in order. Failures are logged and the
// raw file is kept; processing continues with the next track.
type Processor struct {
	enc  Encoder
	opts Options
	log  *slog.Logger
}

// NewProcessor creates a processor around enc.
func NewProcessor(enc Encoder, opts Options) *Processor {
	if opts.Retry.IsRetryable == nil && opts.Retry.MaxRetries == 0 {
		opts.Retry = resilience.EncodeRetryConfig()
	}
	return &Processor{enc: enc, opts: opts, log: slog.Default()}
}

// WithLogger sets the logger used for per-track messages.
func (p *Processor) WithLogger(l *slog.Logger) *Processor {
	p.log = l
	return p
}

// Run processes events until the channel closes or ctx is cancelled.
func (p *Processor) Run(ctx context.Context, events <-chan segment.Completed) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-events:
			if !ok {
				return nil
			}
			res := p.Process(ctx, c)
			if p.opts.OnResult != nil {
				p.opts.OnResult(res)
			}
		}
	}
}

// Process encodes, tags, cleans up and archives one track.
func (p *Processor) Process(ctx context.Context, c segment.Completed) Result {
	ctx, span := trace.StartSpan(ctx, "postprocess_track")
	defer span.End()
	span.SetAttr("index", c.Index)

	log := p.log.With("index", c.Index, "title", c.Entry.Title)
	res := Result{Track: c}

	job := Job{
		Input:  c.Path,
		Output: OutputPath(c.Path),
		Format: p.opts.Format,
		Raw:    p.opts.Container == segment.ContainerRaw,
		Tags:   TagsFor(c.Entry, c.Index, p.opts.TrackTotal),
	}

	err := resilience.Retry(ctx, p.opts.Retry, func() error {
		return p.enc.Encode(ctx, job)
	})
	if err != nil {
		_ = os.Remove(job.Output)
		log.Error("encode failed, keeping raw file", "raw", c.Path, "error", err)
		span.SetAttr("error", err.Error())
		res.Err = err
		return res
	}
	res.Output = job.Output
	log.Info("track encoded", "output", job.Output, "partial", c.Partial)

	if !p.opts.KeepRaw {
		if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove raw file", "raw", c.Path, "error", err)
		}
	}

	if p.opts.Uploader != nil {
		key := ObjectKey(p.opts.KeyPrefix, job.Output)
		if err := p.opts.Uploader.Upload(ctx, job.Output, key); err != nil {
			log.Warn("archive upload failed", "key", key, "error", err)
			res.Err = err
		} else {
			res.Uploaded = true
			log.Info("track archived", "key", key)
		}
	}
	return res
}

// OutputPath swaps the raw extension for the encoded one.
func OutputPath(raw string) string {
	return strings.TrimSuffix(raw, filepath.Ext(raw)) + OutputExt
}

// ObjectKey builds a slash-separated key from prefix and file name.
func ObjectKey(prefix, path string) string {
	name := filepath.Base(path)
	prefix = strings.Trim(segment.SanitizeTitle(prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// IsArchiveError reports whether a Result failed only at the upload step.
// The encoded file is in place in that case.
func (r Result) IsArchiveError() bool {
	return r.Err != nil && r.Output != ""
}
