package rbtree //nolint:testpackage // shares helpers with the internal tests

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, testNewIntTree().Dump(&buf))
	assert.Equal(t, "(empty)\n", buf.String())
}

func TestDumpShape(t *testing.T) {
	t.Parallel()

	tree := testNewIntTree()
	mustInsert(t, tree, 20, 7, 30, 5)

	var buf bytes.Buffer

	require.NoError(t, tree.Dump(&buf))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], "root 20 BLACK (parent none)")
	assert.Contains(t, lines[1], "L 7 BLACK (parent 20)")
	assert.Contains(t, lines[2], "L 5 RED (parent 7)")
	assert.Contains(t, lines[3], "R 30 BLACK (parent 20)")

	// Deeper nodes are indented further.
	assert.Greater(t, strings.Index(lines[2], "L 5"), strings.Index(lines[1], "L 7"))
}

func TestDumpOptions(t *testing.T) {
	t.Parallel()

	tree := testNewIntTree()
	mustInsert(t, tree, 2, 1, 3)

	var buf bytes.Buffer

	require.NoError(t, tree.Dump(&buf, WithColor(), WithListStyle(list.StyleBulletCircle)))
	assert.Contains(t, buf.String(), "BLACK")
	assert.Contains(t, buf.String(), "RED")
	assert.Contains(t, buf.String(), "●")
}

type failingWriter struct{}

var errWrite = errors.New("write failed")

func (failingWriter) Write([]byte) (int, error) {
	return 0, errWrite
}

func TestDumpWriteError(t *testing.T) {
	t.Parallel()

	tree := testNewIntTree()
	mustInsert(t, tree, 1)

	require.ErrorIs(t, tree.Dump(failingWriter{}), errWrite)
}
