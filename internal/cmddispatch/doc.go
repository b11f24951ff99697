// Package cmddispatch parses `!`-prefixed (plus a small set of legacy bare
// words) control commands out of an in-thread chat message and turns them
// into internal/bridgesession.Controller calls, per spec.md §4.C9's command
// table. Unrecognized text from an authorized user is forwarded to the
// agent as a plain message; text from an unauthorized user opens a
// PendingMessageApproval instead.
//
// Grounded on the teacher's internal/command/executor.go: its
// name→*Command registry and argument-splitting idiom (numbered/named
// argument extraction for template expansion) is re-themed here into a
// name→handler table plus a much simpler "subcommand + rest" splitter,
// since every command here maps to a fixed state-machine transition rather
// than a freeform prompt template — the template engine itself
// (text/template, ${var} expansion) has no equivalent in this domain and
// is not carried over.
package cmddispatch
