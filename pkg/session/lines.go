package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// QuitSentinel ends the session when typed on its own line.
const QuitSentinel = "Q"

// IsQuit reports whether line is the quit sentinel, ignoring case and
// surrounding whitespace.
func IsQuit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), QuitSentinel)
}

// ErrQueueClosed is returned by Queue.Push after Close.
var ErrQueueClosed = errors.New("session: line queue closed")

// LineSource yields operator input lines. ReadLine returns io.EOF when no
// more lines will arrive.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
}

type lineResult struct {
	line string
	err  error
}

// ReaderLines reads lines from a blocking reader such as os.Stdin.
// The blocking read runs on its own goroutine so ReadLine stays
// cancellable.
type ReaderLines struct {
	once    sync.Once
	scanner *bufio.Scanner
	results chan lineResult
}

// NewReaderLines creates a LineSource over r.
func NewReaderLines(r io.Reader) *ReaderLines {
	return &ReaderLines{
		scanner: bufio.NewScanner(r),
		results: make(chan lineResult),
	}
}

func (r *ReaderLines) start() {
	go func() {
		for r.scanner.Scan() {
			r.results <- lineResult{line: r.scanner.Text()}
		}
		err := r.scanner.Err()
		if err == nil {
			err = io.EOF
		}
		r.results <- lineResult{err: err}
		close(r.results)
	}()
}

// ReadLine returns the next line.
func (r *ReaderLines) ReadLine(ctx context.Context) (string, error) {
	r.once.Do(r.start)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-r.results:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}

// Queue is a LineSource fed programmatically, e.g. from the web UI.
type Queue struct {
	mu     sync.Mutex
	lines  chan string
	closed bool
}

// NewQueue creates a Queue holding up to size pending lines.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{lines: make(chan string, size)}
}

// Push enqueues a line. It blocks while the queue is full.
func (q *Queue) Push(ctx context.Context, line string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.lines <- line:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain discards pending lines.
func (q *Queue) Drain() {
	for {
		select {
		case <-q.lines:
		default:
			return
		}
	}
}

// ReadLine returns the next queued line.
func (q *Queue) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-q.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// Close ends the queue. Pending lines can still be read.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.lines)
	}
}
