package transport

import (
	"context"
	"strconv"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Sender identifies who produced an update.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName prefers the username, then the full name, then the numeric id.
func (s Sender) DisplayName() string {
	if s.Username != "" {
		return s.Username
	}
	name := s.FirstName
	if s.LastName != "" {
		if name != "" {
			name += " "
		}
		name += s.LastName
	}
	if name != "" {
		return name
	}
	return strconv.FormatInt(s.ID, 10)
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
	From     Sender
	Text     string
	IsGroup  bool
}

type Callback struct {
	ID        string
	From      Sender
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Button is an inline keyboard button. Data is delivered back as Callback.Data.
type Button struct {
	Text string
	Data string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Buttons are rendered as rows of inline buttons. On edit, a nil slice
	// removes the keyboard.
	Buttons [][]Button
}

type Notification struct {
	// Channel names the kind of message (reminder, report, ping) for logs
	// and dedup.
	Channel string
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
