package rbtree

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/list"
)

// Dump sides.
const (
	sideRoot  = "root"
	sideLeft  = "L"
	sideRight = "R"
	noParent  = "none"
)

type dumpConfig struct {
	colorize bool
	style    list.Style
}

// DumpOption configures Dump.
type DumpOption func(*dumpConfig)

// WithColor paints the node colors on terminals that support it.
func WithColor() DumpOption {
	return func(cfg *dumpConfig) {
		cfg.colorize = true
	}
}

// WithListStyle selects the go-pretty list style. The default is list.StyleConnectedLight.
func WithListStyle(style list.Style) DumpOption {
	return func(cfg *dumpConfig) {
		cfg.style = style
	}
}

// Dump writes the shape of the tree to w, one line per node nested by depth:
// the side under its parent, the key, the color and the parent key.
// It is a debugging aid; the layout is not stable.
func (tree *Tree[K, V]) Dump(w io.Writer, opts ...DumpOption) error {
	cfg := dumpConfig{style: list.StyleConnectedLight}
	for _, opt := range opts {
		opt(&cfg)
	}

	writer := list.NewWriter()
	writer.SetStyle(cfg.style)

	if tree.root != 0 {
		tree.appendDump(writer, &cfg)
	}

	out := writer.Render()
	if out == "" {
		out = "(empty)"
	}

	_, err := fmt.Fprintln(w, out)
	if err != nil {
		return fmt.Errorf("write dump: %w", err)
	}

	return nil
}

type dumpFrame struct {
	idx   uint32
	depth int
	side  string
}

// appendDump walks the tree in pre-order with an explicit stack.
func (tree *Tree[K, V]) appendDump(writer list.Writer, cfg *dumpConfig) {
	alloc := tree.storage()
	stack := []dumpFrame{{idx: tree.root, side: sideRoot}}
	level := 0

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Pre-order never descends more than one level past the previous line.
		for level < frame.depth {
			writer.Indent()
			level++
		}

		for level > frame.depth {
			writer.UnIndent()
			level--
		}

		writer.AppendItem(tree.dumpLine(alloc, frame, cfg))

		nd := alloc[frame.idx]
		if nd.right != 0 {
			stack = append(stack, dumpFrame{idx: nd.right, depth: frame.depth + 1, side: sideRight})
		}

		if nd.left != 0 {
			stack = append(stack, dumpFrame{idx: nd.left, depth: frame.depth + 1, side: sideLeft})
		}
	}
}

func (tree *Tree[K, V]) dumpLine(alloc []node[K, V], frame dumpFrame, cfg *dumpConfig) string {
	nd := alloc[frame.idx]

	parentKey := noParent
	if nd.parent != 0 {
		parentKey = fmt.Sprint(alloc[nd.parent].entry.key)
	}

	colorName := nd.color.String()

	if cfg.colorize {
		painter := color.New(color.FgRed, color.Bold)
		if nd.color == Black {
			painter = color.New(color.FgHiBlack, color.Bold)
		}

		colorName = painter.Sprint(colorName)
	}

	return fmt.Sprintf("%s %v %s (parent %s)", frame.side, nd.entry.key, colorName, parentKey)
}
