package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpFilesOrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_outbox.up.sql":        {Data: []byte("CREATE TABLE outbox ();")},
		"000002_outbox.down.sql":      {Data: []byte("DROP TABLE outbox;")},
		"000001_credentials.up.sql":   {Data: []byte("CREATE TABLE credentials ();")},
		"000001_credentials.down.sql": {Data: []byte("DROP TABLE credentials;")},
		"README.md":                   {Data: []byte("notes")},
		"seeds/000003_seed.up.sql":    {Data: []byte("INSERT ...")},
	}

	files, err := upFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_credentials.up.sql", "000002_outbox.up.sql"}, files)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(t.Context(), DefaultConfig())
	assert.ErrorContains(t, err, "URL is empty")
}
