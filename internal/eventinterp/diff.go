package eventinterp

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const diffPreviewMaxLines = 40

// diffSummary renders a compact unified-ish diff plus its +/- line counts,
// grounded on the teacher's internal/session/tools.go computeDiff: a
// line-based diff (DiffLinesToChars → DiffMain → DiffCharsToLines) keeps the
// additions/deletions count accurate even though the underlying match is
// character-based.
func diffSummary(before, after string) (text string, additions, deletions int) {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var buf strings.Builder
	rendered := 0
	for _, d := range diffs {
		lines := splitLines(d.Text)
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += len(lines)
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			deletions += len(lines)
			prefix = "-"
		default:
			continue // unchanged context is omitted from the compact preview
		}
		for _, l := range lines {
			if rendered >= diffPreviewMaxLines {
				continue
			}
			buf.WriteString(prefix)
			buf.WriteString(l)
			buf.WriteByte('\n')
			rendered++
		}
	}
	if rendered >= diffPreviewMaxLines {
		buf.WriteString(fmt.Sprintf("… (%d more lines)\n", additions+deletions-rendered))
	}
	return buf.String(), additions, deletions
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
