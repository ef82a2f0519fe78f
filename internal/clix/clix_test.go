package clix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skald/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadProductFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json list", "p.json", `[{"name":"Desk Lamp","description":"A warm reading lamp","tags":"lighting, desk"}]`},
		{"json object", "p.json", `{"products":[{"name":"Desk Lamp","description":"A warm reading lamp","tags":["lighting","desk"]}]}`},
		{"yaml list", "p.yaml", "- name: Desk Lamp\n  description: A warm reading lamp\n  tags: lighting, desk\n"},
		{"yaml object", "p.yml", "products:\n  - name: Desk Lamp\n    description: A warm reading lamp\n    tags: [lighting, desk]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts, err := ReadProductFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Len(t, drafts, 1)
			assert.Equal(t, "Desk Lamp", drafts[0].Name)
			assert.Equal(t, models.Tags{"lighting", "desk"}, drafts[0].Tags)
		})
	}
}

func TestReadProductFileErrors(t *testing.T) {
	_, err := ReadProductFile(writeFile(t, "p.csv", "name\nlamp\n"))
	assert.ErrorContains(t, err, "unsupported product file type")

	_, err = ReadProductFile(writeFile(t, "p.json", `{"products": 3}`))
	assert.Error(t, err)

	_, err = ReadProductFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("limit", 0, "")
	flags.Int("offset", 0, "")
	flags.String("tags", "", "")
	flags.String("project", "", "")
	flags.String("credential", "", "")

	p, err := ParsePagination(flags)
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 20}, p)

	_, err = ParseTenant(flags)
	assert.Error(t, err)

	require.NoError(t, flags.Parse([]string{"--limit", "5", "--tags", " a, b ,,", "--project", "shop", "--credential", "secret"}))
	p, err = ParsePagination(flags)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Limit)

	tags, err := ParseTags(flags)
	require.NoError(t, err)
	assert.Equal(t, models.Tags{"a", "b"}, tags)

	tenant, err := ParseTenant(flags)
	require.NoError(t, err)
	assert.Equal(t, models.NewTenantKey("shop", "secret"), tenant)
}
