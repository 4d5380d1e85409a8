package raidcmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"raidbot/internal/notifier"
	"raidbot/internal/raid"
	kit "raidbot/internal/transport"
	logx "raidbot/pkg/logx"
	"raidbot/pkg/tgui"
)

// Notifier queues outbound notifications.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// FormatChannel encodes a chat target as "chatID" or "chatID:threadID".
func FormatChannel(t kit.ChatTarget) string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%d:%d", t.ChatID, t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// ParseChannel is the inverse of FormatChannel.
func ParseChannel(s string) (kit.ChatTarget, error) {
	chat, thread, hasThread := strings.Cut(strings.TrimSpace(s), ":")
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil || id == 0 {
		return kit.ChatTarget{}, fmt.Errorf("invalid channel %q", s)
	}
	t := kit.ChatTarget{ChatID: id}
	if hasThread {
		th, err := strconv.Atoi(thread)
		if err != nil {
			return kit.ChatTarget{}, fmt.Errorf("invalid channel %q", s)
		}
		t.ThreadID = th
	}
	return t, nil
}

// Publisher renders raid presentations as Telegram messages with inline
// signup buttons. It implements raid.Publisher.
type Publisher struct {
	adapter  kit.Adapter
	notifier Notifier
	roles    *raid.RoleSet
	log      logx.Logger
}

func NewPublisher(adapter kit.Adapter, n Notifier, roles *raid.RoleSet, log logx.Logger) *Publisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{adapter: adapter, notifier: n, roles: roles, log: log}
}

// Buttons lays out one "join" button per offered role, two per row, and a
// trailing cancel button.
func (p *Publisher) Buttons(pr raid.Presentation) [][]kit.Button {
	if pr.Closed {
		return nil
	}
	var join []kit.Button
	for _, role := range pr.JoinRoles {
		idx := p.roles.Index(role)
		if idx < 0 {
			continue
		}
		join = append(join, kit.Button{Text: "Join as " + role, Data: tgui.Data(callbackPrefix, actionJoin, pr.EventID+":"+strconv.Itoa(idx))})
	}
	rows := tgui.Grid(join, 2)
	rows = append(rows, []kit.Button{{Text: "Cancel signup", Data: tgui.Data(callbackPrefix, actionCancel, pr.EventID)}})
	return rows
}

func (p *Publisher) Publish(ctx context.Context, channel string, pr raid.Presentation) (string, error) {
	to, err := ParseChannel(channel)
	if err != nil {
		return "", err
	}
	ref, err := p.adapter.SendText(ctx, to, pr.Text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, Buttons: p.Buttons(pr)})
	if err != nil {
		return "", err
	}
	return strconv.Itoa(ref.MessageID), nil
}

func (p *Publisher) Update(ctx context.Context, channel, ref string, pr raid.Presentation) error {
	to, err := ParseChannel(channel)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(ref)
	if err != nil {
		return fmt.Errorf("invalid message ref %q", ref)
	}
	return p.adapter.EditText(ctx, kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msgID}, pr.Text,
		&kit.SendOptions{ParseMode: "HTML", DisablePreview: true, Buttons: p.Buttons(pr)})
}

// Notify queues text through the notifier, sending directly when the
// notifier is off.
func (p *Publisher) Notify(ctx context.Context, channel, text string) error {
	return p.notify(ctx, "raid", channel, text)
}

func (p *Publisher) notify(ctx context.Context, kind, channel, text string) error {
	to, err := ParseChannel(channel)
	if err != nil {
		return err
	}
	opts := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if p.notifier != nil {
		err := p.notifier.Notify(ctx, kit.Notification{Channel: kind, Target: to, Text: text, Options: opts})
		if err == nil || !(errors.Is(err, notifier.ErrDisabled) || errors.Is(err, notifier.ErrStopped)) {
			return err
		}
		p.log.Debug("notifier unavailable, sending directly", logx.String("kind", kind), logx.Err(err))
	}
	_, err = p.adapter.SendText(ctx, to, text, opts)
	return err
}
