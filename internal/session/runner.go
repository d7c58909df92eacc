// Package session runs greeting-end detection over one call.
//
// A [Runner] pulls transport chunks from a [source.Source], cuts them into
// frames and feeds the [greeting.Orchestrator] until it decides or the
// stream ends. In augmented mode the raw PCM is forwarded to a live STT
// session as well; the running transcript is judged in the background and
// the orchestrator reads the cached answer without blocking.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/beepwise/internal/audit"
	"github.com/MrWong99/beepwise/internal/greeting"
	"github.com/MrWong99/beepwise/internal/judge"
	"github.com/MrWong99/beepwise/internal/observe"
	"github.com/MrWong99/beepwise/internal/transcript"
	"github.com/MrWong99/beepwise/pkg/audio"
	"github.com/MrWong99/beepwise/pkg/beep"
	"github.com/MrWong99/beepwise/pkg/provider/stt"
	"github.com/MrWong99/beepwise/pkg/provider/vad"
	"github.com/MrWong99/beepwise/pkg/source"
)

// Config is the per-call detection setup shared by every Run.
type Config struct {
	Format   audio.Format
	Greeting greeting.Config
	Beep     beep.Config
	VAD      vad.Config

	// FallbackOffset is reported as the recording start of undetermined
	// calls.
	FallbackOffset float64

	// Language is passed to the STT provider in augmented mode.
	Language string
}

// Call identifies the stream a Run analyses.
type Call struct {
	// ID names the call in logs, metrics and the audit log.
	ID string

	// Source is the URL or path the audio came from.
	Source string
}

// Option configures a [Runner].
type Option func(*Runner)

// WithSTT sets the live transcription provider used in augmented mode.
func WithSTT(p stt.Provider) Option {
	return func(r *Runner) { r.stt = p }
}

// WithJudge sets the transcript judge consulted in augmented mode. label
// names it in the decision reason (e.g. "LLM"); opts configure the cached
// poller of each call.
func WithJudge(j judge.Judge, label string, opts ...judge.CachedOption) Option {
	return func(r *Runner) {
		r.judge = j
		r.judgeLabel = label
		r.judgeOpts = opts
	}
}

// WithAudit records every completed call in s.
func WithAudit(s audit.Store) Option {
	return func(r *Runner) { r.audit = s }
}

// WithMetrics records frames, decisions and active sessions on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner runs calls one at a time or concurrently. It holds no per-call
// state.
type Runner struct {
	cfg        Config
	vad        vad.Engine
	stt        stt.Provider
	judge      judge.Judge
	judgeLabel string
	judgeOpts  []judge.CachedOption
	audit      audit.Store
	metrics    *observe.Metrics
}

// NewRunner validates cfg and returns a Runner using engine for voice
// activity. Augmented mode requires [WithSTT] and [WithJudge].
func NewRunner(cfg Config, engine vad.Engine, opts ...Option) (*Runner, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := cfg.Greeting.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if engine == nil {
		return nil, errors.New("session: vad engine must not be nil")
	}
	r := &Runner{cfg: cfg, vad: engine, judgeLabel: "LLM"}
	for _, o := range opts {
		o(r)
	}
	if cfg.Greeting.Mode == greeting.ModeAugmented {
		if r.stt == nil {
			return nil, errors.New("session: augmented mode requires an stt provider")
		}
		if r.judge == nil {
			return nil, errors.New("session: augmented mode requires a judge")
		}
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r, nil
}

// Config returns the configuration the runner was built with.
func (r *Runner) Config() Config { return r.cfg }

// Run analyses src until a decision is made, the stream ends or ctx is
// done. Run takes ownership of src and closes it before returning.
//
// A stream that ends without a decision is not an error: the Result has
// Determined false and StartAt set to the fallback offset. A read error is
// returned together with the undetermined Result.
func (r *Runner) Run(ctx context.Context, call Call, src source.Source) (Result, error) {
	defer src.Close()

	mode := string(r.cfg.Greeting.Mode)
	ctx, span := observe.StartSpan(ctx, "session.run", trace.WithAttributes(
		attribute.String("call.id", call.ID),
		attribute.String("mode", mode),
	))
	defer span.End()

	log := observe.Logger(ctx).With("call_id", call.ID, "mode", mode)
	r.metrics.ActiveSessions.Add(ctx, 1)
	defer r.metrics.ActiveSessions.Add(ctx, -1)

	res := Result{
		Call:          call,
		Mode:          r.cfg.Greeting.Mode,
		CorrelationID: observe.CorrelationID(ctx),
	}

	framer, err := audio.NewFramer(r.cfg.Format)
	if err != nil {
		return res, fmt.Errorf("session: %w", err)
	}
	bd, err := beep.New(r.cfg.Beep)
	if err != nil {
		return res, fmt.Errorf("session: %w", err)
	}
	vs, err := r.vad.NewSession(r.cfg.VAD)
	if err != nil {
		return res, fmt.Errorf("session: create vad session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var (
		sess   stt.SessionHandle
		buf    *transcript.Buffer
		cached *judge.Cached
		gate   greeting.Gate
	)
	if r.cfg.Greeting.Mode == greeting.ModeAugmented {
		sess, err = r.stt.StartStream(runCtx, stt.StreamConfig{
			SampleRate: r.cfg.Format.SampleRate,
			Channels:   1,
			Language:   r.cfg.Language,
			Encoding:   stt.EncodingLinear16,
		})
		if err != nil {
			return res, fmt.Errorf("session: start stt: %w", err)
		}
		buf = &transcript.Buffer{}
		cached = judge.NewCached(r.judge, buf, r.judgeOpts...)
		gate = cached
	}

	orch, err := greeting.New(r.cfg.Greeting, bd, vs, greeting.WithGate(gate))
	if err != nil {
		closeSTT(log, sess)
		return res, fmt.Errorf("session: %w", err)
	}
	if cached != nil {
		g.Go(func() error { return transcript.Feed(gctx, sess, buf) })
		g.Go(func() error { return cached.Run(gctx) })
	}

	log.Info("session started", "source", call.Source, "sample_rate", r.cfg.Format.SampleRate)
	loopErr := r.loop(gctx, log, src, framer, orch, sess, &res)

	closeSTT(log, sess)
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("session background task failed", "err", err)
	}
	if buf != nil {
		res.Transcript = buf.Snapshot()
	}

	if d, ok := orch.Decision(); ok {
		res.Decision = d
		res.Determined = true
	}
	res.Reason = res.reason(r.judgeLabel)
	res.StartAt = res.Decision.Timestamp
	if !res.Determined {
		res.StartAt = r.cfg.FallbackOffset
	}
	r.finish(ctx, log, span, res, loopErr)

	if loopErr != nil {
		return res, loopErr
	}
	return res, nil
}

// loop feeds frames to orch until it decides or src is exhausted.
func (r *Runner) loop(ctx context.Context, log *slog.Logger, src source.Source, framer *audio.Framer, orch *greeting.Orchestrator, sess stt.SessionHandle, res *Result) error {
	modeAttr := metric.WithAttributes(observe.Attr("mode", string(r.cfg.Greeting.Mode)))
	nextProgress := 0.0
	sttFailed := false

	for {
		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("session: read source: %w", err)
		}
		framer.Write(chunk)

		for {
			c, ok := framer.Next()
			if !ok {
				break
			}
			if sess != nil && !sttFailed {
				if err := sess.SendAudio(c.Raw); err != nil {
					sttFailed = true
					log.Warn("stt send failed; transcript frozen", "err", err)
				}
			}
			res.Frames++
			res.Duration = c.Frame.Timestamp + c.Frame.Duration()
			r.metrics.FramesProcessed.Add(ctx, 1, modeAttr)

			if c.Frame.Timestamp >= nextProgress {
				log.Debug("progress",
					"t", fmt.Sprintf("%.2fs", c.Frame.Timestamp),
					"rms", fmt.Sprintf("%.5f", audio.RMS(c.Frame.Samples)),
					"silence", fmt.Sprintf("%.2fs", orch.Silence()),
				)
				nextProgress += 1
			}

			if d, ok := orch.Process(c.Frame); ok {
				log.Info("greeting end decided",
					"kind", d.Kind,
					"start_at", fmt.Sprintf("%.2f", d.Timestamp),
					"decided_at", fmt.Sprintf("%.2f", d.DecidedAt),
				)
				return nil
			}
		}
	}
}

func (r *Runner) finish(ctx context.Context, log *slog.Logger, span trace.Span, res Result, loopErr error) {
	mode := string(res.Mode)
	outcome := res.Outcome()
	span.SetAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Float64("start_at", res.StartAt),
		attribute.Int("frames", res.Frames),
	)
	if loopErr != nil {
		span.RecordError(loopErr)
		span.SetStatus(codes.Error, loopErr.Error())
	}

	if res.Determined {
		r.metrics.RecordDecision(ctx, string(res.Decision.Kind), mode, res.Decision.DecidedAt)
	} else {
		r.metrics.RecordUndetermined(ctx, mode)
		log.Warn("stream ended without a decision",
			"frames", res.Frames,
			"fallback_offset", res.StartAt,
		)
	}

	if r.audit == nil {
		return
	}
	// The call context may already be cancelled; the audit write still
	// belongs to this call.
	actx := context.WithoutCancel(ctx)
	if _, err := r.audit.Record(actx, res.Entry()); err != nil {
		log.Warn("failed to record audit entry", "err", err)
	}
}

func closeSTT(log *slog.Logger, sess stt.SessionHandle) {
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		log.Warn("failed to close stt session", "err", err)
	}
}
