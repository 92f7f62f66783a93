// Package batch implements the batch engine (C9): it streams a line-per-
// domain input, dispatches probes under a bounded-concurrency chunk barrier,
// and streams one JSON object per line to the output.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentri-project/sentri/internal/model"
)

const (
	DefaultChunkSize  = 50
	MaxChunkSize      = 10000
	DefaultConcurrent = 5
	DefaultGrace      = 30 * time.Second

	maxScanTokenSize = 1024 * 1024
)

// Prober is the C8 collaborator the engine dispatches each domain to.
// probe.Prober satisfies this without either package importing the other.
type Prober interface {
	Probe(ctx context.Context, raw string) model.Record
}

// Config governs chunking, concurrency, and cancellation grace.
type Config struct {
	ChunkSize   int
	Concurrent  int
	GracePeriod time.Duration
	Logger      *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkSize > MaxChunkSize {
		c.ChunkSize = MaxChunkSize
	}
	if c.Concurrent <= 0 {
		c.Concurrent = DefaultConcurrent
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGrace
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Summary reports aggregate counts for a completed (or cancelled) run.
type Summary struct {
	Processed int
	Errors    int
	Elapsed   time.Duration
}

// Run reads domains from input, probes each via prober, and writes one
// JSONL Record per line to output. It never aborts on a single domain's
// failure — failures are reflected as error Records, not as a non-nil
// return error. A non-nil error return means input/output itself could not
// be read or written.
func Run(ctx context.Context, input io.Reader, output io.Writer, prober Prober, cfg Config) (Summary, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)

	writer := &jsonlWriter{w: bufio.NewWriter(output)}

	var summary Summary
	chunk := make([]string, 0, cfg.ChunkSize)

	flushChunk := func() error {
		if len(chunk) == 0 {
			return nil
		}
		processed, errs := runChunk(ctx, chunk, prober, writer, cfg)
		summary.Processed += processed
		summary.Errors += errs
		if err := writer.Flush(); err != nil {
			return err
		}
		cfg.Logger.Info("chunk complete",
			zap.Int("processed", processed),
			zap.Int("errors", errs),
			zap.Duration("elapsed", time.Since(start)),
		)
		chunk = chunk[:0]
		return nil
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		chunk = append(chunk, line)
		if len(chunk) >= cfg.ChunkSize {
			if err := flushChunk(); err != nil {
				return summary, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, err
	}
	if err := flushChunk(); err != nil {
		return summary, err
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// runChunk dispatches every line in chunk to prober under a Concurrent-wide
// semaphore, waiting for all to finish (or the grace period to elapse after
// ctx is cancelled) before returning.
func runChunk(ctx context.Context, chunk []string, prober Prober, writer *jsonlWriter, cfg Config) (processed, errs int) {
	sem := make(chan struct{}, cfg.Concurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, line := range chunk {
		wg.Add(1)
		go func(line string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rec := prober.Probe(ctx, line)
			writer.WriteRecord(rec)

			mu.Lock()
			processed++
			if rec.Error != nil {
				errs++
			}
			mu.Unlock()
		}(line)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(cfg.GracePeriod):
		}
	}

	return processed, errs
}

// jsonlWriter serializes Records as JSON Lines through a single mutex-
// guarded *bufio.Writer, matching C9's single-writer contract.
type jsonlWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (j *jsonlWriter) WriteRecord(rec model.Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.w.Write(line)
	j.w.WriteByte('\n')
}

func (j *jsonlWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}
