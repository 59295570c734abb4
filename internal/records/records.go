// Package records supplies the (record id, text) corpus an index is fitted
// from. Sources return records in a stable order so that corpus positions
// map back to the same ids across rebuilds.
package records

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

const (
	maxIDLength   = 255
	maxTextLength = 1048576
)

// Record is one searchable text and the identifier it is stored under.
type Record struct {
	ID   string `json:"record_id"`
	Text string `json:"text"`
}

// Source lists the full corpus.
type Source interface {
	List(ctx context.Context) ([]Record, error)
}

// Texts returns the text of every record in order.
func Texts(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Text
	}
	return out
}

// IDs returns the id of every record in order.
func IDs(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// ValidationError holds per-record validation failures keyed by position.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// Validate checks ids are present, bounded and unique and that every text
// is UTF-8 within the size limit. Empty texts are allowed.
func Validate(recs []Record) error {
	errs := make(map[string]string)
	seen := make(map[string]int, len(recs))
	for i, r := range recs {
		field := "records[" + strconv.Itoa(i) + "]"
		switch {
		case strings.TrimSpace(r.ID) == "":
			errs[field] = "record id is required"
		case len(r.ID) > maxIDLength:
			errs[field] = fmt.Sprintf("record id must be at most %d characters", maxIDLength)
		case !utf8.ValidString(r.ID):
			errs[field] = "record id is not valid UTF-8"
		case len(r.Text) > maxTextLength:
			errs[field] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
		case !utf8.ValidString(r.Text):
			errs[field] = "text is not valid UTF-8"
		default:
			if prev, dup := seen[r.ID]; dup {
				errs[field] = fmt.Sprintf("duplicate record id %q (first at %d)", r.ID, prev)
			} else {
				seen[r.ID] = i
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// MemorySource serves a fixed slice of records.
type MemorySource struct {
	recs []Record
}

func NewMemorySource(recs []Record) *MemorySource {
	return &MemorySource{recs: append([]Record(nil), recs...)}
}

// FromTexts builds records whose ids are their line numbers, starting at 1.
func FromTexts(texts []string) []Record {
	recs := make([]Record, len(texts))
	for i, t := range texts {
		recs[i] = Record{ID: strconv.Itoa(i + 1), Text: t}
	}
	return recs
}

func (m *MemorySource) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Record(nil), m.recs...), nil
}

// FileSource reads one document per line from a text file. Record ids are
// line numbers.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("opening corpus file: %w: %w", apperrors.ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	defer file.Close()

	var texts []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxTextLength+1)
	for scanner.Scan() {
		texts = append(texts, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus file %s: %w", f.path, err)
	}
	return FromTexts(texts), nil
}
