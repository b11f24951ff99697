package chatutil

// Emoji name sets for the compatibility-critical vocabulary in the
// specification's external interfaces section. Reaction events from chat
// platforms carry a bare emoji "short name" (no colons); Unicode variants
// are accepted where the platform normalizes number emoji to them.

var approvalNames = set("+1", "thumbsup")
var denialNames = set("-1", "thumbsdown")
var allowAllNames = set("white_check_mark", "heavy_check_mark")
var cancelNames = set("x", "octagonal_sign", "stop_sign")
var escapeNames = set("double_vertical_bar", "pause_button")

// numberNames maps a short name (and its Unicode keycap variant) to a
// zero-based option index.
var numberNames = map[string]int{
	"one":   0,
	"two":   1,
	"three": 2,
	"four":  3,
	"1️⃣":    0,
	"2️⃣":    1,
	"3️⃣":    2,
	"4️⃣":    3,
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// IsApproval reports whether emojiName means "approve" (+1/thumbsup).
func IsApproval(emojiName string) bool { return approvalNames[emojiName] }

// IsDenial reports whether emojiName means "deny" (-1/thumbsdown).
func IsDenial(emojiName string) bool { return denialNames[emojiName] }

// IsAllowAll reports whether emojiName means "allow all / invite"
// (white_check_mark/heavy_check_mark).
func IsAllowAll(emojiName string) bool { return allowAllNames[emojiName] }

// IsCancel reports whether emojiName means "cancel"
// (x/octagonal_sign/stop_sign).
func IsCancel(emojiName string) bool { return cancelNames[emojiName] }

// IsEscape reports whether emojiName means "escape/pause"
// (double_vertical_bar/pause_button).
func IsEscape(emojiName string) bool { return escapeNames[emojiName] }

// NumberChoice returns the zero-based option index for a numbered-choice
// emoji (one..four, or the Unicode keycap variants), and false if emojiName
// is not a number choice.
func NumberChoice(emojiName string) (int, bool) {
	idx, ok := numberNames[emojiName]
	return idx, ok
}

// OptionEmoji returns the canonical reaction name to attach for a
// zero-based option index (0..3), used when posting a question/approval
// message so the bot's own added reactions match what NumberChoice expects.
func OptionEmoji(index int) string {
	switch index {
	case 0:
		return "one"
	case 1:
		return "two"
	case 2:
		return "three"
	case 3:
		return "four"
	default:
		return ""
	}
}
