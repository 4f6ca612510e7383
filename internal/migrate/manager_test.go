package migrate

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseURL(t *testing.T) {
	got, err := DatabaseURL("postgres://app:pw@db:5432/ayrene?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://app:pw@db:5432/ayrene?sslmode=disable", got)

	got, err = DatabaseURL("postgresql://db/ayrene")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "pgx5://"))

	_, err = DatabaseURL("host=db user=app dbname=ayrene")
	assert.Error(t, err)
	_, err = DatabaseURL("mysql://db/ayrene")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	var names []string
	for _, e := range entries {
		name := e.Name()
		names = append(names, name)
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
	assert.True(t, sort.StringsAreSorted(names))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "no migrations applied", Status{}.String())
	assert.Equal(t, "version 2", Status{Version: 2, Applied: true}.String())
	assert.Equal(t, "version 1 (dirty)", Status{Version: 1, Dirty: true, Applied: true}.String())
}
