package migration

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cozmiclearning/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestSource_VersionsAreContiguousWithDownFiles(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var versions []uint
	for {
		versions = append(versions, version)

		up, _, err := src.ReadUp(version)
		require.NoError(t, err, "version %d up", version)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		_ = up.Close()
		assert.NotEmpty(t, strings.TrimSpace(string(body)))

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d has no down migration", version)
		_ = down.Close()

		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, version+1, next)
		version = next
	}
	assert.Len(t, versions, 3)
}

func TestSource_CreatesEveryModelTable(t *testing.T) {
	entries, err := schemaFS.ReadDir("sql")
	require.NoError(t, err)

	var ddl strings.Builder
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		body, err := schemaFS.ReadFile("sql/" + e.Name())
		require.NoError(t, err)
		ddl.Write(body)
	}

	namer := schema.NamingStrategy{}
	for _, m := range models.All() {
		tabler, ok := m.(schema.Tabler)
		require.True(t, ok, "%T must name its table", m)
		assert.Contains(t, ddl.String(), "CREATE TABLE IF NOT EXISTS "+tabler.TableName(), "%T", m)

		s, err := schema.Parse(m, &sync.Map{}, namer)
		require.NoError(t, err)
		for _, f := range s.Fields {
			if f.DBName == "" {
				continue
			}
			assert.Contains(t, ddl.String(), f.DBName, "%s.%s", tabler.TableName(), f.DBName)
		}
	}
}
