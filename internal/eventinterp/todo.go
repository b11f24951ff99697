package eventinterp

import (
	"fmt"
	"strings"
)

// renderTaskList implements the TodoWrite completion/checklist rules:
// progress is reported as "k/n · p%", and the set is considered complete
// when there are no todos at all or every one is marked completed,
// grounded on the teacher's internal/session/todo.go bookkeeping.
func renderTaskList(todos []struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}) (content string, completed bool) {
	n := len(todos)
	if n == 0 {
		return "", true
	}

	done := 0
	var body strings.Builder
	for _, t := range todos {
		var box string
		switch t.Status {
		case "completed":
			box = "[x]"
			done++
		case "in_progress":
			box = "[~]"
		default:
			box = "[ ]"
		}
		body.WriteString(fmt.Sprintf("- %s %s\n", box, t.Content))
	}

	pct := done * 100 / n
	header := fmt.Sprintf("**Tasks (%d/%d · %d%%)**\n\n", done, n, pct)
	return header + body.String(), done == n
}
