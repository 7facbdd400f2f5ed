package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// Lister is the read side of the local store used by ExportJSONL.
type Lister interface {
	List(ctx context.Context) ([]*model.Record, error)
}

// Setter is the write side of the local store used by ImportJSONL.
type Setter interface {
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int       `json:"record_count"`
	LayoutCount int       `json:"layout_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string        `json:"type"`
	Data *model.Record `json:"data"`
}

// ExportJSONL writes every stored record as JSONL to w: a header line, then
// one line per record sorted by key.
func ExportJSONL(ctx context.Context, s Lister, w io.Writer) error {
	recs, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Key < recs[j].Key
	})

	layouts := 0
	for _, r := range recs {
		if _, ok := model.LayoutTypeFromKey(r.Key); ok {
			layouts++
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		RecordCount: len(recs),
		LayoutCount: layouts,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range recs {
		if err := enc.Encode(record{Type: "record", Data: r}); err != nil {
			return fmt.Errorf("encode record %s: %w", r.Key, err)
		}
	}

	return nil
}

// ImportJSONL restores records written by ExportJSONL into s and returns how
// many were written. Unknown line types are skipped.
func ImportJSONL(ctx context.Context, s Setter, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	n, line := 0, 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec struct {
			Type    string          `json:"type"`
			Version string          `json:"version"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		switch rec.Type {
		case "header":
			if rec.Version != "1" {
				return n, fmt.Errorf("line %d: unsupported export version %q", line, rec.Version)
			}
		case "record":
			var data model.Record
			if err := json.Unmarshal(rec.Data, &data); err != nil {
				return n, fmt.Errorf("line %d: %w", line, err)
			}
			if data.Key == "" {
				return n, fmt.Errorf("line %d: record without key", line)
			}
			if err := s.Set(ctx, data.Key, data.Value); err != nil {
				return n, fmt.Errorf("restore %s: %w", data.Key, err)
			}
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read export: %w", err)
	}
	return n, nil
}
