package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "database:\n  driver: bolt\n  bolt:\n    path: " + filepath.Join(dir, "skald.db") + "\n" +
		"embedding:\n  provider: none\n" +
		"log:\n  level: error\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLIAccountAndProducts(t *testing.T) {
	cfg := writeTestConfig(t)
	tenant := []string{"--config", cfg, "--project", "shop", "--credential", "secret"}

	out, err := run(t, append([]string{"account", "topup", "5"}, tenant...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Credit limit is now $15.00")

	out, err = run(t, append([]string{"account", "show"}, tenant...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "$15.00")

	out, err = run(t, append([]string{"product", "add",
		"--name", "Desk Lamp",
		"--description", "<p>A warm reading lamp</p>",
		"--tags", "lighting, desk",
		"--image-url", "https://cdn.example.com/lamp.jpg",
		"--product-url", "https://shop.example.com/lamp",
		"--skip-embedding"}, tenant...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Added product Desk Lamp")

	out, err = run(t, append([]string{"product", "list"}, tenant...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Desk Lamp")
	assert.Contains(t, out, "Displayed 1 products.")

	out, err = run(t, append([]string{"account", "transactions"}, tenant...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "purchase")

	out, err = run(t, "doctor", "--config", cfg)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Embedding provider: none")
}

func TestCLIRequiresTenant(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := run(t, "account", "show", "--config", cfg, "--project", "", "--credential", "")
	assert.ErrorContains(t, err, "--project and --credential are required")
}
