package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitDBAndSeed(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir) // keep a stray .env out of the picture
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := runCommand(t, "init-db")
	require.NoError(t, err)
	require.Contains(t, out, "schema ready (sqlite)")

	data := filepath.Join(dir, "flights.json")
	require.NoError(t, os.WriteFile(data, []byte(`[
		{"flight_id": 1, "flight_number": "IR712", "origin": "IKA", "destination": "IST"},
		{"flight_id": 2, "flight_number": "IR713", "origin": "IST", "destination": "IKA"}
	]`), 0o600))

	out, err = runCommand(t, "seed", data)
	require.NoError(t, err)
	require.Contains(t, out, "loaded 2 flights")

	_, err = runCommand(t, "seed")
	require.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DRIVER", "postgres")

	_, err := runCommand(t, "init-db")
	require.ErrorContains(t, err, "unsupported DB_DRIVER")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
