package records

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

func TestMemorySource_ListIsolated(t *testing.T) {
	in := []Record{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}}
	src := NewMemorySource(in)
	in[0].Text = "mutated"

	got, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alpha", got[0].Text)

	got[1].Text = "mutated"
	again, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "beta", again[1].Text)
}

func TestMemorySource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemorySource(nil).List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte("first doc\r\n\nthird doc\n"), 0o644))

	got, err := NewFileSource(path).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{ID: "1", Text: "first doc"},
		{ID: "2", Text: ""},
		{ID: "3", Text: "third doc"},
	}, got)
	assert.Equal(t, []string{"1", "2", "3"}, IDs(got))
	assert.Equal(t, []string{"first doc", "", "third doc"}, Texts(got))
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.txt")).List(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		recs    []Record
		wantErr bool
		field   string
	}{
		{name: "valid", recs: []Record{{ID: "1", Text: "x"}, {ID: "2", Text: ""}}},
		{name: "empty corpus is not a validation error", recs: nil},
		{name: "blank id", recs: []Record{{ID: " ", Text: "x"}}, wantErr: true, field: "records[0]"},
		{name: "duplicate id", recs: []Record{{ID: "1"}, {ID: "2"}, {ID: "1"}}, wantErr: true, field: "records[2]"},
		{name: "latin-1 text", recs: []Record{{ID: "1", Text: "ok"}, {ID: "2", Text: "caf\xe9 latte"}}, wantErr: true, field: "records[1]"},
		{name: "latin-1 id", recs: []Record{{ID: "r\xe9f", Text: "x"}}, wantErr: true, field: "records[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.recs)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestNewPostgresSource(t *testing.T) {
	cfg := config.RecordsConfig{Table: "records", IDColumn: "id", TextColumn: "text"}
	src, err := NewPostgresSource(nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id::text, COALESCE(text, '') FROM records ORDER BY id", src.query)

	cfg.Table = "records; DROP TABLE records"
	_, err = NewPostgresSource(nil, cfg)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
