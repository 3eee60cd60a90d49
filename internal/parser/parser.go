// Package parser reads artifact content incrementally and hands events to
// callers in bounded batches. Artifacts are never loaded wholesale; peak
// memory is a function of batch size, not file size.
package parser

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"casefile/internal/artifact"
)

// Event is one parsed record. Fields keeps the source structure, nested
// objects included, so the indexer does not flatten.
type Event struct {
	Seq       int64
	Timestamp time.Time
	Fields    map[string]any
}

// ErrMalformed marks structurally bad artifact content. It is terminal: a
// file that fails to parse will fail the same way on retry.
var ErrMalformed = errors.New("malformed artifact content")

// maxLineBytes bounds a single event line; anything larger is malformed
// rather than a reason to grow buffers without limit.
const maxLineBytes = 4 * 1024 * 1024

// timestampKeys are probed in order when extracting an event timestamp.
var timestampKeys = []string{"timestamp", "@timestamp", "Timestamp", "TimeCreated", "time", "EventTime"}

// CountEvents runs the lightweight pass the filter uses: it counts events
// without materializing them.
func CountEvents(path string, format artifact.Format) (int64, error) {
	var count int64
	_, err := stream(context.Background(), path, format, 1024, func(batch []Event) error {
		count += int64(len(batch))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Stream parses the artifact incrementally, invoking fn once per batch of at
// most batchSize events. It returns the total number of events handed out.
func Stream(ctx context.Context, path string, format artifact.Format, batchSize int, fn func([]Event) error) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	return stream(ctx, path, format, batchSize, fn)
}

func stream(ctx context.Context, path string, format artifact.Format, batchSize int, fn func([]Event) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	switch format {
	case artifact.FormatCSV:
		return streamCSV(ctx, f, batchSize, fn)
	case artifact.FormatJSON:
		return streamJSONArray(ctx, f, batchSize, fn)
	case artifact.FormatJSONL, artifact.FormatEventLog:
		// Event logs arrive as JSONL exports; binary conversion happens in
		// the import collaborator before staging.
		return streamJSONL(ctx, f, batchSize, fn)
	default:
		return streamLines(ctx, f, batchSize, fn)
	}
}

type batcher struct {
	batchSize int
	fn        func([]Event) error
	batch     []Event
	total     int64
}

func newBatcher(batchSize int, fn func([]Event) error) *batcher {
	return &batcher{batchSize: batchSize, fn: fn, batch: make([]Event, 0, batchSize)}
}

func (b *batcher) add(ev Event) error {
	b.total++
	ev.Seq = b.total
	b.batch = append(b.batch, ev)
	if len(b.batch) >= b.batchSize {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	if len(b.batch) == 0 {
		return nil
	}
	if err := b.fn(b.batch); err != nil {
		return err
	}
	// Fresh slice so the callee may retain the batch without aliasing.
	b.batch = make([]Event, 0, b.batchSize)
	return nil
}

func streamJSONL(ctx context.Context, r io.Reader, batchSize int, fn func([]Event) error) (int64, error) {
	b := newBatcher(batchSize, fn)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return b.total, err
		}
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		fields := make(map[string]any)
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return b.total, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		if err := b.add(Event{Timestamp: extractTimestamp(fields), Fields: fields}); err != nil {
			return b.total, err
		}
	}
	if err := scanner.Err(); err != nil {
		return b.total, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b.total, b.flush()
}

func streamJSONArray(ctx context.Context, r io.Reader, batchSize int, fn func([]Event) error) (int64, error) {
	b := newBatcher(batchSize, fn)
	dec := json.NewDecoder(bufio.NewReader(r))

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		return 0, fmt.Errorf("%w: expected top-level array", ErrMalformed)
	}

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return b.total, err
		}
		fields := make(map[string]any)
		if err := dec.Decode(&fields); err != nil {
			return b.total, fmt.Errorf("%w: element %d: %v", ErrMalformed, b.total, err)
		}
		if err := b.add(Event{Timestamp: extractTimestamp(fields), Fields: fields}); err != nil {
			return b.total, err
		}
	}
	return b.total, b.flush()
}

func streamCSV(ctx context.Context, r io.Reader, batchSize int, fn func([]Event) error) (int64, error) {
	b := newBatcher(batchSize, fn)
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return b.total, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return b.total, fmt.Errorf("%w: row %d: %v", ErrMalformed, b.total+1, err)
		}
		fields := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				fields[col] = record[i]
			}
		}
		if err := b.add(Event{Timestamp: extractTimestamp(fields), Fields: fields}); err != nil {
			return b.total, err
		}
	}
	return b.total, b.flush()
}

func streamLines(ctx context.Context, r io.Reader, batchSize int, fn func([]Event) error) (int64, error) {
	b := newBatcher(batchSize, fn)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return b.total, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := b.add(Event{Fields: map[string]any{"message": text}}); err != nil {
			return b.total, err
		}
	}
	if err := scanner.Err(); err != nil {
		return b.total, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b.total, b.flush()
}

func extractTimestamp(fields map[string]any) time.Time {
	for _, key := range timestampKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, value); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
