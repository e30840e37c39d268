package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedContainsInitSchema(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Contains(t, names, "000001_init_schema.up.sql")
	require.Contains(t, names, "000001_init_schema.down.sql")
}
