// Package relay normalizes an upstream server-sent event stream into
// content events written to a client, one relay per client connection.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/metrics"
)

// State is the relay lifecycle: Idle → Streaming → Completed | Failed.
type State int32

// Relay states.
const (
	Idle State = iota
	Streaming
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrAbort is returned by a DecodeFunc when the provider signals a terminal error event.
	ErrAbort = errors.New("upstream aborted stream")
	// ErrTimeout signals that the total upstream wait exceeded Config.Timeout.
	ErrTimeout = errors.New("upstream timeout")
	// ErrClientGone signals that the client disconnected or a write to it failed.
	ErrClientGone = errors.New("client disconnected")
	// ErrReused signals a second Run on the same relay.
	ErrReused = errors.New("relay already used")
)

// Event is the normalized payload written to clients as `data: {"content": "..."}`.
type Event struct {
	Content string `json:"content"`
}

// Sink receives normalized events. Emit must flush before returning.
type Sink interface {
	Emit(ev Event) error
}

// DecodeFunc extracts the content delta from one `data:` payload.
// An empty delta is skipped. ErrAbort fails the stream; any other error drops the line.
type DecodeFunc func(data []byte) (string, error)

// Upstream is an opened provider stream.
type Upstream struct {
	Body     io.ReadCloser
	Decode   DecodeFunc
	Sentinel string // payload that marks the end of the stream, swallowed; empty for none
}

// OpenFunc opens the upstream stream. It must return an error for non-success responses.
type OpenFunc func(ctx context.Context) (Upstream, error)

// Config bounds a relay.
type Config struct {
	Provider       string        // metrics label
	Timeout        time.Duration // total upstream wait, open plus stream; zero disables
	ReadBufferSize int           // bytes per read
	MaxLineBytes   int           // longest retained partial line; zero disables
	FlushTrailing  bool          // decode a trailing unterminated line at EOF
}

// Default relay limits.
const (
	DefaultReadBufferSize = 4 << 10
	DefaultMaxLineBytes   = 1 << 20
)

// DefaultConfig returns a config with the package defaults.
func DefaultConfig(provider string) Config {
	return Config{
		Provider:       provider,
		Timeout:        60 * time.Second,
		ReadBufferSize: DefaultReadBufferSize,
		MaxLineBytes:   DefaultMaxLineBytes,
		FlushTrailing:  true,
	}
}

// Relay forwards one upstream stream to one sink.
type Relay struct {
	cfg     Config
	logger  *zap.Logger
	state   atomic.Int32
	emitted atomic.Int64
}

// New creates an idle relay.
func New(cfg Config, logger *zap.Logger) *Relay {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.Provider == "" {
		cfg.Provider = "unknown"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{cfg: cfg, logger: logger}
}

// State returns the current lifecycle state.
func (r *Relay) State() State { return State(r.state.Load()) }

// Emitted returns the number of events written to the sink.
func (r *Relay) Emitted() int64 { return r.emitted.Load() }

// Run opens the upstream and relays it to sink until EOF, failure or cancellation.
// The returned error is nil only in the Completed state.
func (r *Relay) Run(ctx context.Context, open OpenFunc, sink Sink) error {
	if r.State() != Idle {
		return ErrReused
	}

	cancel := context.CancelFunc(func() {})
	if r.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeoutCause(ctx, r.cfg.Timeout, ErrTimeout)
	}
	defer cancel()

	up, err := open(ctx)
	if err != nil {
		return r.finish(fmt.Errorf("open upstream: %w", r.cause(ctx, err)))
	}
	if up.Body == nil || up.Decode == nil {
		return r.finish(errors.New("open upstream: incomplete upstream"))
	}
	r.state.Store(int32(Streaming))

	// Closing the body unblocks an in-flight read once ctx is done.
	stop := context.AfterFunc(ctx, func() { _ = up.Body.Close() })
	defer func() {
		stop()
		_ = up.Body.Close()
	}()

	return r.finish(r.stream(ctx, up, sink))
}

func (r *Relay) stream(ctx context.Context, up Upstream, sink Sink) error {
	lines := newLineBuffer(r.cfg.MaxLineBytes, func() { r.drop("oversized") })
	handle := func(line []byte) error { return r.handleLine(line, up, sink) }
	chunk := make([]byte, r.cfg.ReadBufferSize)

	for {
		if ctx.Err() != nil {
			return r.cause(ctx, ctx.Err())
		}

		n, readErr := up.Body.Read(chunk)
		if n > 0 {
			if err := lines.feed(chunk[:n], handle); err != nil {
				return err
			}
		}

		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			if r.cfg.FlushTrailing {
				if rest := lines.rest(); len(rest) > 0 {
					return handle(rest)
				}
			}
			return nil
		case ctx.Err() != nil:
			return r.cause(ctx, readErr)
		default:
			return fmt.Errorf("read upstream: %w", readErr)
		}
	}
}

func (r *Relay) handleLine(line []byte, up Upstream, sink Sink) error {
	payload, ok := dataPayload(line)
	if !ok {
		return nil
	}
	if up.Sentinel != "" && string(bytes.TrimSpace(payload)) == up.Sentinel {
		return nil
	}

	content, err := up.Decode(payload)
	if err != nil {
		if errors.Is(err, ErrAbort) {
			return err
		}
		r.drop("malformed")
		r.logger.Debug("Dropped undecodable upstream line",
			zap.String("provider", r.cfg.Provider), zap.Error(err))
		return nil
	}
	if content == "" {
		return nil
	}

	if err := sink.Emit(Event{Content: content}); err != nil {
		return fmt.Errorf("%w: %w", ErrClientGone, err)
	}
	r.emitted.Add(1)
	metrics.RelayEventsTotal.WithLabelValues(r.cfg.Provider).Inc()
	return nil
}

// cause maps a failure observed under a done context to ErrTimeout or ErrClientGone.
func (r *Relay) cause(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	c := context.Cause(ctx)
	if errors.Is(c, ErrTimeout) || errors.Is(c, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrClientGone
}

func (r *Relay) finish(err error) error {
	state := Completed
	if err != nil {
		state = Failed
	}
	r.state.Store(int32(state))
	metrics.RelayStreamsTotal.WithLabelValues(r.cfg.Provider, state.String()).Inc()

	if err != nil {
		r.logger.Warn("Relay failed",
			zap.String("provider", r.cfg.Provider),
			zap.Int64("events", r.Emitted()),
			zap.Error(err),
		)
	}
	return err
}

func (r *Relay) drop(reason string) {
	metrics.RelayDroppedLinesTotal.WithLabelValues(r.cfg.Provider, reason).Inc()
}

var dataPrefix = []byte("data:")

// dataPayload strips "data:" and one optional space. Other SSE fields are ignored.
func dataPayload(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := line[len(dataPrefix):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	return payload, true
}
