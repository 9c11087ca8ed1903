package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src Source) ([]string, error) {
	t.Helper()
	seq, err := src.Open()
	require.NoError(t, err)

	var items []string
	for item, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func TestSliceSource(t *testing.T) {
	items, err := collect(t, SliceSource{"a", "  b  ", "", "   ", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)
}

func TestSliceSource_Empty(t *testing.T) {
	items, err := collect(t, SliceSource(nil))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSliceSource_StopEarly(t *testing.T) {
	seq, err := SliceSource{"a", "b", "c"}.Open()
	require.NoError(t, err)

	var got []string
	for item := range seq {
		got = append(got, item)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("first line\n\n  second line  \r\nthird\n"), 0o644))

	items, err := collect(t, NewFileSource(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line", "third"}, items)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.txt")).Open()
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileSource_ReadErrorAfterItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	long := make([]byte, maxLineSize+10)
	for i := range long {
		long[i] = 'x'
	}
	content := append([]byte("ok one\nok two\n"), long...)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	items, err := collect(t, NewFileSource(path))
	assert.Equal(t, []string{"ok one", "ok two"}, items)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
}
