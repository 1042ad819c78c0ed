package artifact

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const diffContext = 2

// Diff renders a line diff from one text to another. Removed lines start with
// "-", added lines with "+", and unchanged runs are trimmed to a little context
// around each change. Identical inputs produce "".
func Diff(from, to string) string {
	if from == to {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for i, d := range diffs {
		text := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			writeLines(&out, "-", text)
		case diffmatchpatch.DiffInsert:
			writeLines(&out, "+", text)
		case diffmatchpatch.DiffEqual:
			first, last := i == 0, i == len(diffs)-1
			switch {
			case !first && !last && len(text) <= 2*diffContext:
				writeLines(&out, " ", text)
			case first && len(text) > diffContext:
				out.WriteString(" ...\n")
				writeLines(&out, " ", text[len(text)-diffContext:])
			case last && len(text) > diffContext:
				writeLines(&out, " ", text[:diffContext])
				out.WriteString(" ...\n")
			case first || last:
				writeLines(&out, " ", text)
			default:
				writeLines(&out, " ", text[:diffContext])
				out.WriteString(" ...\n")
				writeLines(&out, " ", text[len(text)-diffContext:])
			}
		}
	}
	return out.String()
}

func splitLines(text string) []string {
	parts := strings.SplitAfter(text, "\n")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i := range parts {
		parts[i] = strings.TrimSuffix(parts[i], "\n")
	}
	return parts
}

func writeLines(out *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		out.WriteString(prefix)
		out.WriteString(line)
		out.WriteByte('\n')
	}
}
