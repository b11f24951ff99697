// Package chatutil holds the pure-function vocabulary every other
// component shares: emoji classification against the compatibility-critical
// reaction table, per-dialect markdown formatting, short-id generation, and
// human-relative time formatting. Nothing here touches the network, a
// subprocess, or disk.
package chatutil
