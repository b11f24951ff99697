package chatutil

import (
	"fmt"
	"strings"
)

// Dialect formats rich text for a specific chat backend's markdown flavor.
// Grounded on the teacher's per-backend formatter manager idiom
// (internal/formatter in opencode), re-themed from code-formatter tooling
// to chat message markup since that's what the specification's
// "formatter (per dialect)" entry in §6 actually means here.
type Dialect interface {
	Bold(s string) string
	Italic(s string) string
	Code(s string) string
	CodeBlock(lang, s string) string
	Mention(username string) string
	Link(text, url string) string
	Quote(s string) string
	Heading(level int, s string) string
	Escape(s string) string
}

// Mattermost implements Dialect for Mattermost's flavor of markdown, which
// is close to CommonMark with @mentions resolved by username.
type Mattermost struct{}

var mdEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"~", "\\~",
)

func (Mattermost) Bold(s string) string   { return "**" + s + "**" }
func (Mattermost) Italic(s string) string { return "_" + s + "_" }
func (Mattermost) Code(s string) string   { return "`" + s + "`" }

func (Mattermost) CodeBlock(lang, s string) string {
	return "```" + lang + "\n" + strings.TrimRight(s, "\n") + "\n```"
}

func (Mattermost) Mention(username string) string { return "@" + username }

func (Mattermost) Link(text, url string) string {
	return fmt.Sprintf("[%s](%s)", text, url)
}

func (Mattermost) Quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

func (Mattermost) Heading(level int, s string) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level) + " " + s
}

func (Mattermost) Escape(s string) string { return mdEscaper.Replace(s) }
