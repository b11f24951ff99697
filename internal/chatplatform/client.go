package chatplatform

import "context"

// User identifies a chat platform account.
type User struct {
	ID       string
	Username string
	IsBot    bool
}

// Post is a single message in a thread.
type Post struct {
	ID        string
	ThreadID  string
	ChannelID string
	UserID    string
	Message   string
	CreatedAt int64 // unix millis, platform-native
}

// Reaction is an emoji reaction on a post.
type Reaction struct {
	PostID    string
	UserID    string
	EmojiName string
}

// MessageEvent is delivered for every new post the bot observes.
type MessageEvent struct {
	Post Post
	User *User // nil if the platform could not resolve the author
}

// ReactionEvent is delivered for every reaction add the bot observes.
type ReactionEvent struct {
	Reaction Reaction
	User     *User
}

// FileInfo describes an attachment without fetching its bytes.
type FileInfo struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// ThreadHistoryOptions narrows a GetThreadHistory call.
type ThreadHistoryOptions struct {
	Limit              int
	ExcludeBotMessages bool
}

// Formatter renders platform-specific markup for one chat dialect. It is the
// interface form of chatutil.Dialect so adapters can expose their own
// implementation without internal/chatutil importing internal/chatplatform.
type Formatter interface {
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

// Client is the operation set spec.md §6 requires of any chat platform
// adapter: connection lifecycle, identity, posts, reactions, typing, file
// access, formatting, and an event stream. internal/bridgesession,
// internal/poststream, internal/reaction, and internal/permbroker all depend
// on this interface rather than on a concrete platform package.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error

	BotUser() User
	GetUser(ctx context.Context, userID string) (User, error)
	IsUserAllowed(username string, allowed map[string]bool) bool
	BotName() string

	CreatePost(ctx context.Context, message, threadID string) (Post, error)
	UpdatePost(ctx context.Context, postID, message string) error
	DeletePost(ctx context.Context, postID string) error
	CreateInteractivePost(ctx context.Context, message string, emojiNames []string, threadID string) (Post, error)
	GetPost(ctx context.Context, postID string) (Post, error)
	GetThreadHistory(ctx context.Context, threadID string, opts ThreadHistoryOptions) ([]Post, error)

	AddReaction(ctx context.Context, postID, emojiName string) error

	SendTyping(ctx context.Context, threadID string) error

	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	GetFileInfo(ctx context.Context, fileID string) (FileInfo, error)

	Formatter() Formatter

	// Events returns the channel of incoming messages; Reactions returns the
	// channel of incoming reactions. Both are closed on Disconnect.
	Events() <-chan MessageEvent
	Reactions() <-chan ReactionEvent
}
