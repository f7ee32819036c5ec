package workload

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineDiff renders a line based diff of want and got: removed lines start
// with "-", added ones with "+" and unchanged ones with a space.
func LineDiff(want, got string) string {
	dmp := diffmatchpatch.New()

	wantChars, gotChars, lines := dmp.DiffLinesToChars(want, got)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(wantChars, gotChars, false), lines)

	var out strings.Builder

	for _, diff := range diffs {
		prefix := " "

		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffEqual:
		}

		for line := range strings.Lines(diff.Text) {
			out.WriteString(prefix)
			out.WriteString(line)
		}
	}

	return out.String()
}
