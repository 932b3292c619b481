package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"wanderfield/simcore/internal/events"
	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/internal/simulation"
)

// captureSubscriber names the stream subscription used for persistence.
const captureSubscriber = "capture"

// Options configures a session recorder.
type Options struct {
	Root    string
	Session *simulation.Session
	Logger  *logging.Logger
	Clock   func() time.Time
}

// Recorder persists one session's event stream and frame snapshots as a bundle.
type Recorder struct {
	writer  *Writer
	logger  *logging.Logger
	session *simulation.Session
	sub     *events.Subscription
	done    chan struct{}
	frames  atomic.Int64
	events  atomic.Int64
}

// Stats summarises recorder progress for status reporting.
type Stats struct {
	Frames    int64  `json:"frames"`
	Events    int64  `json:"events"`
	Pending   int    `json:"pending"`
	Directory string `json:"directory"`
}

// NewRecorder opens a bundle directory for the session and prepares the recorder.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Session == nil {
		return nil, errors.New("capture recorder requires a session")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	writer, _, err := NewWriter(opts.Root, opts.Session.ID(), opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("open capture bundle: %w", err)
	}
	if scene := opts.Session.Scene(); scene != nil {
		writer.SetWorldInfo(DescribeWorld(scene.Definition))
	}
	return &Recorder{
		writer:  writer,
		logger:  logger.With(logging.String("capture_dir", writer.Directory())),
		session: opts.Session,
		done:    make(chan struct{}),
	}, nil
}

// Start subscribes to the session event stream and begins persisting envelopes.
// Start may be called at most once.
func (r *Recorder) Start(ctx context.Context) error {
	if r == nil {
		return errors.New("nil recorder")
	}
	sub, err := r.session.Events().Subscribe(ctx, captureSubscriber, 256)
	if err != nil {
		return fmt.Errorf("subscribe capture stream: %w", err)
	}
	r.sub = sub
	go func() {
		defer close(r.done)
		//1.- Close shuts the channel, so this loop drains every buffered envelope before exiting.
		for envelope := range sub.Events() {
			r.recordEnvelope(envelope)
			if err := sub.Ack(envelope.Sequence); err != nil {
				r.logger.Warn("capture ack failed", logging.Uint64("sequence", envelope.Sequence), logging.Error(err))
			}
		}
	}()
	return nil
}

func (r *Recorder) recordEnvelope(envelope *events.Envelope) {
	if envelope == nil {
		return
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		r.logger.Warn("capture event encode failed", logging.Uint64("sequence", envelope.Sequence), logging.Error(err))
		return
	}
	if err := r.writer.AppendEvent(envelope.Sequence, string(envelope.Kind), payload); err != nil {
		r.logger.Warn("capture event write failed", logging.Uint64("sequence", envelope.Sequence), logging.Error(err))
		return
	}
	r.events.Add(1)
}

// RecordFrame persists one frame snapshot; it must stay cheap because the
// session loop calls it inline.
func (r *Recorder) RecordFrame(frame simulation.Frame) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		r.logger.Warn("capture frame encode failed", logging.Uint64("tick", frame.Tick), logging.Error(err))
		return
	}
	if err := r.writer.AppendFrame(frame.Tick, frame.SimMS, payload); err != nil {
		r.logger.Warn("capture frame write failed", logging.Uint64("tick", frame.Tick), logging.Error(err))
		return
	}
	r.frames.Add(1)
}

// Flush forces staged frames onto disk ahead of the normal cadence.
func (r *Recorder) Flush() error {
	if r == nil || r.writer == nil {
		return errors.New("recorder closed")
	}
	return r.writer.Flush()
}

// Stats reports recorded totals together with the staging backlog.
func (r *Recorder) Stats() Stats {
	if r == nil {
		return Stats{}
	}
	return Stats{
		Frames:    r.frames.Load(),
		Events:    r.events.Load(),
		Pending:   r.writer.PendingFrames(),
		Directory: r.writer.Directory(),
	}
}

// Directory reports the bundle directory backing this recorder.
func (r *Recorder) Directory() string {
	if r == nil || r.writer == nil {
		return ""
	}
	return r.writer.Directory()
}

// Close stops the event drain and finalises the bundle files.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	if r.sub != nil {
		r.sub.Close()
		<-r.done
	}
	return r.writer.Close()
}
