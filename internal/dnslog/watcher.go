package dnslog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kroleg/homelab/internal/logger"
	"github.com/kroleg/homelab/internal/metrics"
)

const (
	// DefaultBufferSize bounds the event channel. Under a log storm the
	// oldest buffered event is dropped with a warning instead of growing
	// memory without bound; at-least-once delivery is still preserved
	// for everything the consumer keeps up with.
	DefaultBufferSize = 1024

	// DefaultPollInterval is how often the tail loop checks for growth.
	DefaultPollInterval = 500 * time.Millisecond
)

// Watcher tails a DNS query log and publishes resolution events on a
// bounded channel. It survives rotation, truncation and malformed lines;
// only failure to open the log at startup is fatal.
type Watcher struct {
	path         string
	pollInterval time.Duration
	events       chan Record
	stopCh       chan struct{}
	doneCh       chan struct{}
	log          logger.Logger

	malformed int64
}

// NewWatcher creates a watcher for the given log file. Zero values pick
// the package defaults.
func NewWatcher(path string, pollInterval time.Duration, bufferSize int, log logger.Logger) *Watcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Watcher{
		path:         path,
		pollInterval: pollInterval,
		events:       make(chan Record, bufferSize),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		log:          log,
	}
}

// Events is the stream consumed by the coordinator. It is closed when
// the watcher stops.
func (w *Watcher) Events() <-chan Record {
	return w.events
}

// Start opens the log and begins tailing from its current end. Failing
// to open the file is the one unrecoverable error here.
func (w *Watcher) Start(ctx context.Context) error {
	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open dns log: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to seek dns log: %w", err)
	}

	go w.tail(ctx, f)
	return nil
}

// Stop halts the tail loop and closes the event channel.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) tail(ctx context.Context, f *os.File) {
	defer close(w.doneCh)
	defer close(w.events)
	defer func() { _ = f.Close() }()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			w.handleLine(line)
			continue
		}

		// EOF: put any partial line back so it is re-read once the
		// writer finishes it.
		if len(line) > 0 {
			if _, serr := f.Seek(-int64(len(line)), io.SeekCurrent); serr != nil {
				w.log.Warn("failed to rewind partial line", logger.Error(serr))
			}
			reader.Reset(f)
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(w.pollInterval):
		}

		if nf, reopened := w.reopenIfRotated(f); reopened {
			_ = f.Close()
			f = nf
			reader.Reset(f)
		}
	}
}

// reopenIfRotated detects external rotation or truncation by comparing
// file identity and size against the reader's position, and reopens the
// log from the start when either changed.
func (w *Watcher) reopenIfRotated(f *os.File) (*os.File, bool) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, false
	}
	cur, err := f.Stat()
	if err != nil {
		return nil, false
	}
	onDisk, err := os.Stat(w.path)
	if err != nil {
		// Rotation in progress; the new file will appear shortly.
		return nil, false
	}

	if os.SameFile(cur, onDisk) && onDisk.Size() >= pos {
		return nil, false
	}

	nf, err := os.Open(w.path)
	if err != nil {
		w.log.Warn("failed to reopen rotated dns log", logger.Error(err))
		return nil, false
	}
	w.log.Info("dns log rotated, reopening from start",
		logger.String("path", w.path))
	return nf, true
}

func (w *Watcher) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	rec, err := parseLine([]byte(line))
	if err != nil {
		w.malformed++
		metrics.DNSLogMalformedLines.Inc()
		// Warn on the first few, then demote to debug so a corrupt log
		// section does not flood the logs.
		if w.malformed <= 3 {
			w.log.Warn("skipping malformed dns log line",
				logger.Int("total_malformed", int(w.malformed)),
				logger.Error(err))
		} else {
			w.log.Debug("skipping malformed dns log line", logger.Error(err))
		}
		return
	}

	metrics.DNSEventsTotal.Inc()
	select {
	case w.events <- rec:
	default:
		// Buffer full: drop the oldest event to keep the tail loop from
		// blocking behind a slow consumer.
		select {
		case dropped := <-w.events:
			metrics.DNSEventsDropped.Inc()
			w.log.Warn("dns event buffer full, dropping oldest event",
				logger.String("dropped_hostname", dropped.Hostname))
		default:
		}
		select {
		case w.events <- rec:
		default:
			// The consumer raced us and the buffer refilled; this drop
			// counts too.
			metrics.DNSEventsDropped.Inc()
			w.log.Warn("dns event buffer full, dropping event",
				logger.String("hostname", rec.Hostname))
		}
	}
}
