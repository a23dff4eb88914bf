package reader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/domain/card"
)

// OpenFunc opens the byte stream a reader helper writes IDm lines to.
type OpenFunc func() (io.ReadCloser, error)

// Open returns an OpenFunc for a device node, FIFO or regular file. "-" is stdin.
func Open(path string) OpenFunc {
	if path == "-" || path == "" {
		return func() (io.ReadCloser, error) {
			return io.NopCloser(os.Stdin), nil
		}
	}
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

type Config struct {
	// AttemptTimeout caps one wait for a line. An expired attempt is logged and the
	// next one starts on the same source; 0 waits in a single attempt.
	AttemptTimeout time.Duration
	// Debounce drops the same card read again within this window.
	Debounce   time.Duration
	BackoffMin time.Duration
	BackoffMax time.Duration
	Now        func() time.Time
}

type line struct {
	text string
	err  error
}

// LineReader implements ports.CardReader over a line-oriented source: one IDm per
// line, as printed by keyboard-wedge readers and NFC helper processes. Open and
// read failures are retried with backoff and never reach the caller. One pump
// goroutine reads each opened source; it is replaced only after the stream ends.
type LineReader struct {
	open   OpenFunc
	cfg    Config
	logger *logrus.Logger
	b      *backoff.Backoff

	mu     sync.Mutex
	src    io.ReadCloser
	lines  chan line
	stop   chan struct{}
	lastID string
	lastAt time.Time
}

func NewLineReader(open OpenFunc, cfg Config, logger *logrus.Logger) *LineReader {
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LineReader{
		open:   open,
		cfg:    cfg,
		logger: logger,
		b: &backoff.Backoff{
			Min:    cfg.BackoffMin,
			Max:    cfg.BackoffMax,
			Factor: 2,
			Jitter: true,
		},
	}
}

// Read blocks until a card is presented or ctx is done.
func (r *LineReader) Read(ctx context.Context) (card.IDm, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lines, err := r.ensureOpen()
		if err != nil {
			if r.logger != nil {
				r.logger.WithError(err).Warn("card reader unavailable; retrying")
			}
			if err := r.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}

		l, ok, timedOut, err := r.next(ctx, lines)
		switch {
		case err != nil:
			return nil, err
		case timedOut:
			// The pump stays attached: stdin and many device nodes cannot be
			// unblocked by Close, and a second pump would race it for lines.
			if r.logger != nil {
				r.logger.WithFields(logrus.Fields{"timeout": r.cfg.AttemptTimeout.String()}).Debug("no card within attempt timeout")
			}
			continue
		case !ok || l.err != nil:
			streamErr := l.err
			if streamErr == nil {
				streamErr = io.EOF
			}
			if r.logger != nil {
				r.logger.WithError(streamErr).Warn("card reader stream ended; reopening")
			}
			r.reset()
			if err := r.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}
		r.b.Reset()

		id := card.ParseIDm(l.text)
		if id.Empty() || r.duplicate(id) {
			continue
		}
		return id, nil
	}
}

// next waits for one line, the attempt timeout, or ctx.
func (r *LineReader) next(ctx context.Context, lines <-chan line) (l line, ok, timedOut bool, err error) {
	var timeout <-chan time.Time
	if r.cfg.AttemptTimeout > 0 {
		t := time.NewTimer(r.cfg.AttemptTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return line{}, false, false, ctx.Err()
	case <-timeout:
		return line{}, false, true, nil
	case l, ok = <-lines:
		return l, ok, false, nil
	}
}

// Close releases the underlying source.
func (r *LineReader) Close() error {
	r.reset()
	return nil
}

func (r *LineReader) duplicate(id card.IDm) bool {
	now := r.cfg.Now()
	key := id.String()
	dup := r.cfg.Debounce > 0 && key == r.lastID && now.Sub(r.lastAt) < r.cfg.Debounce
	r.lastID, r.lastAt = key, now
	return dup
}

func (r *LineReader) wait(ctx context.Context) error {
	t := time.NewTimer(r.b.Duration())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *LineReader) ensureOpen() (<-chan line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines != nil {
		return r.lines, nil
	}
	src, err := r.open()
	if err != nil {
		return nil, err
	}
	r.src = src
	r.lines = make(chan line)
	r.stop = make(chan struct{})
	go pump(src, r.lines, r.stop)
	return r.lines, nil
}

func (r *LineReader) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.src == nil {
		return
	}
	close(r.stop)
	_ = r.src.Close()
	r.src, r.lines, r.stop = nil, nil, nil
}

func pump(src io.Reader, out chan<- line, stop <-chan struct{}) {
	defer close(out)
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		text := string(bytes.TrimSpace(sc.Bytes()))
		select {
		case out <- line{text: text}:
		case <-stop:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	if errors.Is(err, os.ErrClosed) {
		return
	}
	select {
	case out <- line{err: err}:
	case <-stop:
	}
}
