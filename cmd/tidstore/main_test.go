package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "tidstore %s", strings.Join(args, " "))
	return out
}

func TestCLI_EndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())

	out := mustExecute(t, "init")
	assert.Contains(t, out, "config.yaml")
	assert.Contains(t, out, "Provisioned storage sqlite")
	assert.Contains(t, out, "Provisioned cache memory")

	_, err := execute(t, "init")
	assert.ErrorContains(t, err, "already initialized")

	out = mustExecute(t, "entity", "create", "person", "Averroes", "--author", "300", "-o", "json")
	var created map[string]int64
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	id := strconv.FormatInt(created["id"], 10)

	out = mustExecute(t, "entity", "show", id)
	assert.Contains(t, out, "Averroes")
	assert.Contains(t, out, "Type:   107")

	mustExecute(t, "entity", "rename", id, "Ibn Rushd", "--author", "300", "--note", "native name")

	out = mustExecute(t, "query", "--subject", id, "--predicate", "name", "--all", "-o", "json")
	var names []entities.Statement
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	require.Len(t, names, 2)
	assert.True(t, names[0].IsCancelled())
	assert.False(t, names[1].IsCancelled())
	assert.True(t, names[1].Object.Equal(entities.StringObject("Ibn Rushd")))

	out = mustExecute(t, "statement", "make", id, "description", "s:Philosopher", "--author", "300")
	statementID := strings.TrimSpace(out)

	out = mustExecute(t, "statement", "get", statementID)
	assert.Contains(t, out, id+" 2003 s:Philosopher")
	assert.Contains(t, out, "3001=e:300")

	batch := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(batch, []byte(`[
		{"op": "cancel", "statement_id": "`+statementID+`"},
		{"op": "make", "subject": "`+id+`", "predicate": "description", "object": "s:Commentator"}
	]`), 0644))
	out = mustExecute(t, "statement", "batch", batch, "--author", "300")
	assert.Len(t, strings.Fields(out), 2)

	out = mustExecute(t, "query", "--subject", id, "--predicate", "description")
	assert.Contains(t, out, "s:Commentator")
	assert.NotContains(t, out, "s:Philosopher")

	out = mustExecute(t, "entity", "list", "person")
	assert.Contains(t, out, "Ibn Rushd")

	out = mustExecute(t, "cache", "invalidate", id)
	assert.Contains(t, out, "Invalidated 1 entries.")
	mustExecute(t, "cache", "clean")
	mustExecute(t, "cache", "clear")

	out = mustExecute(t, "id", "-n", "3")
	assert.Len(t, strings.Fields(out), 3)
}

func TestCLI_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "query", "--subject", "1")
	assert.ErrorContains(t, err, "run 'tidstore init' first")

	mustExecute(t, "init")

	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{name: "bad output format", args: []string{"id", "-o", "yaml"}, errMsg: "invalid output format"},
		{name: "query without filters", args: []string{"query"}, errMsg: "at least one of"},
		{name: "zero count", args: []string{"id", "-n", "0"}, errMsg: "count must be positive"},
		{name: "unknown statement", args: []string{"statement", "get", "12345"}, errMsg: "statement not found"},
		{name: "unknown entity", args: []string{"entity", "show", "12345"}, errMsg: "entity does not exist"},
		{name: "missing author", args: []string{"entity", "create", "person", "X"}, errMsg: "author"},
		{name: "note without author", args: []string{"statement", "make", "1", "name", "x", "--note", "n"}, errMsg: "needs an author"},
		{name: "batch file missing", args: []string{"statement", "batch", "missing.json"}, errMsg: "opening file"},
		{name: "batch unknown extension", args: []string{"statement", "batch", "edits.txt"}, errMsg: "unsupported batch format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestCLI_NoCache(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg := config.Default()
	cfg.Cache.Backend = config.BackendNone
	require.NoError(t, config.Write(dir, cfg))

	_, err := execute(t, "cache", "clear")
	assert.ErrorIs(t, err, errNoCache)

	mustExecute(t, "statement", "make", "100", "name", "Averroes")
}

func TestBackends_StatementStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{
		Default: config.BackendMemory,
		Legacy:  []string{config.BackendMemory},
	}
	b := newBackends(cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { b.Close() })

	deps, err := b.deps(t.Context())
	require.NoError(t, err)
	require.NotNil(t, deps.CacheHandler)
	assert.Len(t, b.storages, 2)
	assert.Contains(t, b.storages, config.BackendMemory+legacySuffix)

	_, err = b.backend(t.Context(), "mysql", false)
	assert.ErrorContains(t, err, "unknown storage backend")
}
