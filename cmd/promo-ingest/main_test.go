package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboul/storefront/internal/domain/cart"
)

func writeFeed(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want entry
		ok   bool
	}{
		{"spring15,15", entry{"SPRING15", 15}, true},
		{"  VIP50 , 50 ", entry{"VIP50", 50}, true},
		{"WELCOME", entry{"WELCOME", defaultPercent}, true},
		{"", entry{}, false},
		{"# comment", entry{}, false},
		{"ABC", entry{}, false},
		{"BAD-CODE,10", entry{}, false},
		{"TOOMUCH,101", entry{}, false},
		{"NOTNUM,ten", entry{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFeed(t, dir, "promos1.gz", "SPRING15,15", "ONLYONE,5", "SHARED,30"),
		writeFeed(t, dir, "promos2.gz", "spring15,15", "SHARED,20", "# partner two"),
		writeFeed(t, dir, "promos3.gz", "SHARED,25", "LATE,40"),
	}

	got, err := collect(context.Background(), files, 2)
	require.NoError(t, err)
	assert.Equal(t, cart.Static{"SPRING15": 15, "SHARED": 20}, got)

	got, err = collect(context.Background(), files, 3)
	require.NoError(t, err)
	assert.Equal(t, cart.Static{"SHARED": 20}, got)

	got, err = collect(context.Background(), files, 1)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestCollect_Rejects(t *testing.T) {
	dir := t.TempDir()
	feed := writeFeed(t, dir, "promos1.gz", "SPRING15,15")

	_, err := collect(context.Background(), nil, 1)
	require.Error(t, err)

	_, err = collect(context.Background(), []string{feed}, 2)
	require.Error(t, err)

	_, err = collect(context.Background(), []string{filepath.Join(dir, "missing.gz")}, 1)
	require.Error(t, err)
}
