package chatutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmojiClassification(t *testing.T) {
	require.True(t, IsApproval("+1"))
	require.True(t, IsApproval("thumbsup"))
	require.False(t, IsApproval("thumbsdown"))

	require.True(t, IsDenial("-1"))
	require.True(t, IsDenial("thumbsdown"))

	require.True(t, IsAllowAll("white_check_mark"))
	require.True(t, IsAllowAll("heavy_check_mark"))

	require.True(t, IsCancel("x"))
	require.True(t, IsCancel("octagonal_sign"))
	require.True(t, IsCancel("stop_sign"))

	require.True(t, IsEscape("double_vertical_bar"))
	require.True(t, IsEscape("pause_button"))
}

func TestNumberChoiceRoundTrip(t *testing.T) {
	for i := 0; i < 4; i++ {
		name := OptionEmoji(i)
		require.NotEmpty(t, name)
		idx, ok := NumberChoice(name)
		require.True(t, ok)
		require.Equal(t, i, idx)
	}

	idx, ok := NumberChoice("3️⃣")
	require.True(t, ok)
	require.Equal(t, 2, idx)

	_, ok = NumberChoice("five")
	require.False(t, ok)
}

func TestShortenPathRelativizesAndTruncates(t *testing.T) {
	got := ShortenPath("/repo/src/pkg/very/deep/file.go", "/repo", 0)
	require.Equal(t, "src/pkg/very/deep/file.go", got)

	got = ShortenPath("/repo/src/pkg/very/deep/nested/file.go", "/repo", 20)
	require.Equal(t, ".../file.go", got)
}

func TestTruncateCommandCutsAtWordBoundary(t *testing.T) {
	cmd := "git commit -am 'a very long commit message that goes on and on'"
	got := TruncateCommand(cmd, 20)
	require.LessOrEqual(t, len(got), 21) // 17-byte prefix cut at the last space plus the 3-byte ellipsis
	require.Contains(t, got, "…")
}

func TestMattermostDialect(t *testing.T) {
	var d Mattermost
	require.Equal(t, "**bold**", d.Bold("bold"))
	require.Equal(t, "_it_", d.Italic("it"))
	require.Equal(t, "`code`", d.Code("code"))
	require.Equal(t, "@alice", d.Mention("alice"))
	require.Equal(t, "[text](http://x)", d.Link("text", "http://x"))
	require.Equal(t, "## Title", d.Heading(2, "Title"))
	require.Equal(t, "> quoted", d.Quote("quoted"))
}
