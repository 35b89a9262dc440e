package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaging_Commit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, SummaryCSVFile), []byte("old"), 0o644))

	st, err := NewStaging(out)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(st.Path(SummaryCSVFile), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(st.Path(MapFile), []byte("<html>"), 0o644))

	// Nothing visible before commit.
	data, err := os.ReadFile(filepath.Join(out, SummaryCSVFile))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.NoFileExists(t, filepath.Join(out, MapFile))

	paths, err := st.Commit()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, SummaryCSVFile), filepath.Join(out, MapFile)}, paths)

	data, err = os.ReadFile(filepath.Join(out, SummaryCSVFile))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "staging directory removed")
}

func TestStaging_Discard(t *testing.T) {
	out := t.TempDir()
	st, err := NewStaging(out)
	require.NoError(t, err)
	require.NoError(t, WriteSummaryCSV(st.Path(SummaryCSVFile), nil))

	st.Discard()

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStaging_CommitMissingFile(t *testing.T) {
	st, err := NewStaging(t.TempDir())
	require.NoError(t, err)
	defer st.Discard()

	st.Path(MapFile)
	_, err = st.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), MapFile)
}
