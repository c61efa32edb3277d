package commands

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/seal-go/config"
)

func memConfig(t *testing.T) afero.Fs {
	t.Helper()
	old := config.AppFs
	fs := afero.NewMemMapFs()
	config.AppFs = fs
	t.Cleanup(func() { config.AppFs = old })
	t.Setenv("DATABASE_URL", "")
	return fs
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, fs afero.Fs) string {
	t.Helper()
	dir := t.TempDir()
	yaml := fmt.Sprintf(`data_sources:
  main:
    dialect: sqlite
    path: %s
    default: true
  side:
    dialect: sqlite
    path: %s
`, filepath.Join(dir, "main.db"), filepath.Join(dir, "side.db"))
	require.NoError(t, afero.WriteFile(fs, "/seal.yaml", []byte(yaml), 0644))
	return "/seal.yaml"
}

func TestExecQueryColumns(t *testing.T) {
	fs := memConfig(t)
	path := writeConfig(t, fs)

	out, err := run(t, "--config", path, "exec", "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)")
	require.NoError(t, err)
	assert.Contains(t, out, "0 row(s) affected")

	out, err = run(t, "-c", path, "exec", "INSERT INTO users (name, age) VALUES (?, ?)", "alice", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "1 row(s) affected")

	out, err = run(t, "-c", path, "query", "SELECT name, age FROM users WHERE age = ?", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "(1 row)")

	out, err = run(t, "-c", path, "query", "--table", "users", "SELECT * FROM users")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")

	out, err = run(t, "-c", path, "columns", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "main.users")
	assert.Contains(t, out, "PK")
	assert.Contains(t, out, "INTEGER")

	out, err = run(t, "-c", path, "columns", "--refresh", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "main.users")

	_, err = run(t, "-c", path, "-d", "side", "columns", "users")
	assert.Error(t, err, "table lives in main only")

	_, err = run(t, "-c", path, "-d", "nope", "ping")
	assert.Error(t, err)
}

func TestPingAndStats(t *testing.T) {
	fs := memConfig(t)
	path := writeConfig(t, fs)

	out, err := run(t, "-c", path, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "main (sqlite)")
	assert.Contains(t, out, "side (sqlite)")

	out, err = run(t, "-c", path, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "side")
	assert.Contains(t, out, "Structure cache")
	assert.Contains(t, out, "unbounded")
}

func TestInit(t *testing.T) {
	fs := memConfig(t)
	dbPath := filepath.Join(t.TempDir(), "app.db")

	out, err := run(t, "init", "--output", "/project/.seal.yaml", "--path", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote /project/.seal.yaml")

	exists, err := afero.Exists(fs, "/project/.seal.yaml")
	require.NoError(t, err)
	assert.True(t, exists)

	cfg, err := config.Load("/project/.seal.yaml")
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.DataSources["main"].Path)
	assert.Equal(t, "deleted", cfg.ORM.LogicalDeletedField)

	_, err = run(t, "init", "--output", "/project/.seal.yaml")
	assert.Error(t, err)

	_, err = run(t, "init", "--output", "/other.yaml", "--dialect", "oracle")
	assert.Error(t, err)
}

func TestStatementArgs(t *testing.T) {
	assert.Equal(t, []interface{}{int64(3), "x", nil}, statementArgs([]string{"3", "x", "NULL"}))
}
