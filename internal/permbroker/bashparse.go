package permbroker

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// bashCommand is a single parsed invocation within a (possibly compound)
// shell command string.
type bashCommand struct {
	Name       string
	Args       []string
	Subcommand string
}

// parseBashCommand splits a shell command line into its constituent
// invocations, used only to build a shortened human-readable descriptor for
// the interactive prompt — never to make an allow/deny decision.
func parseBashCommand(command string) ([]bashCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("permbroker: parse bash command: %w", err)
	}

	var commands []bashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *bashCommand {
	if len(call.Args) == 0 {
		return nil
	}
	cmd := &bashCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}
	for _, arg := range call.Args[1:] {
		s := wordToString(arg)
		cmd.Args = append(cmd.Args, s)
		if cmd.Subcommand == "" && !strings.HasPrefix(s, "-") {
			cmd.Subcommand = s
		}
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// summarizeBash renders a best-effort one-line summary of a bash command,
// e.g. "git commit, npm install" for a compound `git commit -am x && npm
// install`. Falls back to the raw string if parsing fails.
func summarizeBash(command string) string {
	cmds, err := parseBashCommand(command)
	if err != nil || len(cmds) == 0 {
		return command
	}
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if c.Subcommand != "" {
			parts = append(parts, c.Name+" "+c.Subcommand)
		} else {
			parts = append(parts, c.Name)
		}
	}
	return strings.Join(parts, ", ")
}
