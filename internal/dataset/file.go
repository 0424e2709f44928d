package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
)

// File reads one JSON record per line. Consecutive records of the same group
// form one batch; blank lines and lines starting with # are skipped.
type File struct {
	Path string
}

func (f *File) Batches(ctx context.Context) ([]Batch, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", f.Path, err)
	}
	defer fh.Close()
	batches, err := ReadJSONLines(ctx, fh)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", f.Path, err)
	}
	slog.Default().With("component", "dataset").Debug("file loaded", "path", f.Path, "summary", describe(batches))
	return batches, nil
}

// ReadJSONLines decodes a JSON-lines record stream.
func ReadJSONLines(ctx context.Context, r io.Reader) ([]Batch, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var records []*block.Record
	line := 0
	for sc.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec block.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, &rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return splitByGroup(records), nil
}

// WriteJSONLines encodes batches in the format ReadJSONLines accepts.
func WriteJSONLines(w io.Writer, batches []Batch) error {
	enc := json.NewEncoder(w)
	for _, b := range batches {
		for _, r := range b.Records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	}
	return nil
}
