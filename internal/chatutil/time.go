package chatutil

import (
	"time"

	"github.com/dustin/go-humanize"
)

// RelativeTime renders t relative to now (e.g. "3 minutes ago"), used in
// session headers and lifecycle posts.
func RelativeTime(t time.Time) string {
	return humanize.Time(t)
}

// RelativeTimeAt renders t relative to a fixed reference instant, for
// deterministic tests.
func RelativeTimeAt(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// Duration renders a duration the way a lifecycle/timeout notice would
// ("5 minutes", "30 seconds").
func Duration(d time.Duration) string {
	return humanize.RelTime(time.Now(), time.Now().Add(d), "", "")
}
