package persistence

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsDeclareNumberingConstraints(t *testing.T) {
	files, err := fs.Glob(migrationsFS, migrationsDir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	content, err := fs.ReadFile(migrationsFS, files[0])
	require.NoError(t, err)
	schema := string(content)

	assert.True(t, strings.HasPrefix(schema, "-- +goose Up"))
	assert.Contains(t, schema, "CONSTRAINT tickets_number_key UNIQUE (number)")
	assert.Contains(t, schema, "ticket_number_watermark")
	assert.Contains(t, schema, "ON DELETE RESTRICT")
}
