// Package raidcmd exposes the raid engine as Telegram commands and inline
// button callbacks.
package raidcmd

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"raidbot/internal/fflogs"
	"raidbot/internal/raid"
	kit "raidbot/internal/transport"
	"raidbot/internal/transport/telegram/router"
	logx "raidbot/pkg/logx"
	"raidbot/pkg/tgui"
)

const (
	callbackPrefix = "raid"
	actionJoin     = "join"
	actionCancel   = "cancel"
	actionPF       = "pf"

	defaultPing = "Attention needed!"
	notFoundMsg = "Raid not found. Use /raid list to see available raids."

	fflogsTimeout = 45 * time.Second
)

// Handlers binds chat commands to the raid controller and the FFLogs service.
type Handlers struct {
	ctrl      *raid.Controller
	fflogs    *fflogs.Service
	pub       *Publisher
	templates map[string]raid.Template
	log       logx.Logger
}

func New(ctrl *raid.Controller, ff *fflogs.Service, pub *Publisher, templates map[string]raid.Template, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{ctrl: ctrl, fflogs: ff, pub: pub, templates: templates, log: log}
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "raid create",
			Description: "create a raid event",
			Usage:       `/raid create "Name" "Description" "YYYY-MM-DD HH:MM" [type] [guide] [Role:N ...]`,
			Handle:      h.create,
		},
		{Route: "raid list", Aliases: []string{"raids"}, Description: "list upcoming raids", Usage: "/raid list", Handle: h.list},
		{Route: "raid delete", Description: "delete a raid event", Usage: "/raid delete <id>", Handle: h.delete},
		{Route: "raid join", Description: "join a raid with a role", Usage: "/raid join <id> <role>", Handle: h.join},
		{Route: "raid cancel", Description: "cancel your signup", Usage: "/raid cancel <id>", Handle: h.cancel},
		{Route: "raid show", Description: "post the raid card in this chat", Usage: "/raid show <id>", Handle: h.show},
		{Route: "raid schedule", Description: "schedule recurring raids from a template", Usage: "/raid schedule <template>", Handle: h.schedule},
		{Route: "raid ping", Description: "ping everyone signed up for a raid type", Usage: "/raid ping <type> [message]", Handle: h.ping},
		{Route: "raid pf", Description: "post Party Finder info", Usage: `/raid pf "Duty Name" "Description" "Category" "Min iLvl"`, Handle: h.partyFinder},
		{
			Route:       "raid fflogs register",
			Description: "register your character with FFLogs",
			Usage:       `/raid fflogs register "Character Name" "Server" [region]`,
			Timeout:     fflogsTimeout,
			Handle:      h.fflogsRegister,
		},
		{Route: "raid fflogs recent", Description: "show your recent logs", Usage: "/raid fflogs recent [count]", Timeout: fflogsTimeout, Handle: h.fflogsRecent},
		{Route: "raid fflogs static", Description: "static performance for a raid", Usage: "/raid fflogs static <id>", Timeout: fflogsTimeout, Handle: h.fflogsStatic},
		{Route: "ping", Description: "check the bot is alive", Usage: "/ping", Handle: h.alive},
	}
}

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: callbackPrefix, Action: actionJoin, Description: "sign up from the raid card", Handle: h.joinButton},
		{Prefix: callbackPrefix, Action: actionCancel, Description: "cancel from the raid card", Handle: h.cancelButton},
		{Prefix: callbackPrefix, Action: actionPF, Description: "party finder join hint", Handle: h.partyFinderButton},
	}
}

// userMessage turns expected failures into a reply. Unexpected errors are
// returned for the router to log.
func userMessage(err error, fallback string) (string, error) {
	var ve *raid.ValidationError
	switch {
	case errors.As(err, &ve):
		return html.EscapeString(ve.Message), nil
	case errors.Is(err, raid.ErrNotFound):
		return notFoundMsg, nil
	case errors.Is(err, raid.ErrPersist):
		return fallback, err
	}
	return "", err
}

// fail replies msg when set and marks err as already reported to the user.
func fail(ctx context.Context, req *router.Request, msg string, err error) error {
	if msg == "" {
		return err
	}
	_ = req.Reply(ctx, msg)
	return router.Reported(err)
}

// CreateArgs is a parsed "/raid create" request.
type CreateArgs struct {
	Name        string
	Description string
	At          time.Time
	Category    string
	GuideLink   string
	Capacity    map[string]int
}

// ParseCreateArgs reads name, description and datetime, then an optional
// type (no ':'), an optional http(s) guide link and Role:N limits.
func ParseCreateArgs(args []string, loc *time.Location) (CreateArgs, error) {
	if len(args) < 3 {
		return CreateArgs{}, &raid.ValidationError{Message: `Missing arguments. Format: /raid create "Raid Name" "Raid Description" "YYYY-MM-DD HH:MM" [type] [guide] [roles]`}
	}
	at, err := raid.ParseLocalTime(args[2], loc)
	if err != nil {
		return CreateArgs{}, err
	}
	out := CreateArgs{Name: args[0], Description: args[1], At: at}
	rest := args[3:]
	if len(rest) > 0 && !strings.Contains(rest[0], ":") {
		out.Category = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && isLink(rest[0]) {
		out.GuideLink = rest[0]
		rest = rest[1:]
	}
	for _, tok := range rest {
		i := strings.LastIndexByte(tok, ':')
		if i <= 0 {
			return CreateArgs{}, &raid.ValidationError{Message: fmt.Sprintf("Invalid role limit %q. Use Role:N.", tok)}
		}
		n, err := strconv.Atoi(strings.TrimSpace(tok[i+1:]))
		if err != nil {
			return CreateArgs{}, &raid.ValidationError{Message: fmt.Sprintf("Invalid role limit %q. Use Role:N.", tok)}
		}
		if out.Capacity == nil {
			out.Capacity = map[string]int{}
		}
		out.Capacity[strings.TrimSpace(tok[:i])] = n
	}
	return out, nil
}

func isLink(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (h *Handlers) create(ctx context.Context, req *router.Request) error {
	args, err := ParseCreateArgs(req.RawArgs, h.ctrl.Location())
	if err != nil {
		msg, err := userMessage(err, "")
		return fail(ctx, req, msg, err)
	}
	ev, err := h.ctrl.Create(ctx, raid.CreateSpec{
		Name:        args.Name,
		Description: args.Description,
		ScheduledAt: args.At,
		Category:    args.Category,
		GuideLink:   args.GuideLink,
		Capacity:    args.Capacity,
		Channel:     FormatChannel(req.Chat),
		CreatedBy:   req.From.ID,
		Publish:     true,
	})
	if err != nil {
		msg, err := userMessage(err, "Failed to create raid. Please try again.")
		return fail(ctx, req, msg, err)
	}
	return req.Reply(ctx, fmt.Sprintf("Raid %q created! ID: <code>%s</code>", html.EscapeString(ev.Name), ev.ID))
}

func (h *Handlers) list(ctx context.Context, req *router.Request) error {
	events := h.ctrl.Upcoming()
	if len(events) == 0 {
		return req.Reply(ctx, "No upcoming raids scheduled.")
	}
	now := h.ctrl.Now()
	opts := h.ctrl.RenderOptions()
	lines := make([]string, 0, len(events)+1)
	lines = append(lines, "<b>Upcoming Raids:</b>")
	for _, ev := range events {
		rel := humanize.RelTime(ev.ScheduledAt, now, "ago", "from now")
		lines = append(lines, fmt.Sprintf("%s (%s)", raid.ListLine(ev, opts), rel))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (h *Handlers) delete(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "Missing arguments. Format: /raid delete [raid ID]")
	}
	ev, err := h.ctrl.Delete(ctx, req.Args[0])
	if err != nil {
		msg, err := userMessage(err, "Could not delete the raid. Please try again.")
		return fail(ctx, req, msg, err)
	}
	return req.Reply(ctx, fmt.Sprintf("Raid %q has been deleted.", html.EscapeString(ev.Name)))
}

func (h *Handlers) join(ctx context.Context, req *router.Request) error {
	if len(req.RawArgs) < 2 {
		return req.Reply(ctx, "Missing arguments. Format: /raid join [raidId] [role]")
	}
	role := strings.Join(req.RawArgs[1:], " ")
	res, err := h.ctrl.Join(ctx, req.RawArgs[0], req.From.ID, req.From.DisplayName(), role)
	return fail(ctx, req, html.EscapeString(res.Message), err)
}

func (h *Handlers) cancel(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "Missing arguments. Format: /raid cancel [raidId]")
	}
	res, err := h.ctrl.CancelSignup(ctx, req.Args[0], req.From.ID)
	if err != nil {
		msg, err := userMessage(err, "Could not cancel your signup. Please try again.")
		return fail(ctx, req, msg, err)
	}
	return req.Reply(ctx, res.Message())
}

func (h *Handlers) show(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "Missing arguments. Format: /raid show [raidId]")
	}
	if _, err := h.ctrl.Show(ctx, req.Args[0], FormatChannel(req.Chat)); err != nil {
		msg, err := userMessage(err, "Could not post the raid card.")
		return fail(ctx, req, msg, err)
	}
	return nil
}

func (h *Handlers) templateIDs() string {
	ids := make([]string, 0, len(h.templates))
	for id := range h.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}

func (h *Handlers) schedule(ctx context.Context, req *router.Request) error {
	var tpl raid.Template
	ok := false
	if len(req.Args) > 0 {
		tpl, ok = h.templates[req.Args[0]]
	}
	if !ok {
		return req.Reply(ctx, "Invalid raid template. Available templates: "+html.EscapeString(h.templateIDs()))
	}
	n, err := h.ctrl.Generate(ctx, tpl, FormatChannel(req.Chat), false)
	if err != nil {
		return fail(ctx, req, fmt.Sprintf("Scheduled %d instances of %s before an error. Please try again.", n, html.EscapeString(tpl.ID)), err)
	}
	return req.Reply(ctx, fmt.Sprintf("Successfully scheduled %d instances of %s for the next %d weeks.",
		n, html.EscapeString(tpl.ID), h.ctrl.HorizonWeeks()))
}

func (h *Handlers) ping(ctx context.Context, req *router.Request) error {
	if len(req.RawArgs) < 1 {
		return req.Reply(ctx, "Please specify a raid type to ping. Format: /raid ping raid1 [message]")
	}
	category := req.RawArgs[0]
	text := strings.TrimSpace(strings.Join(req.RawArgs[1:], " "))
	if text == "" {
		text = defaultPing
	}
	targets, events := h.ctrl.PingTargets(category)
	if events == 0 {
		return req.Reply(ctx, fmt.Sprintf("No raids found with type '%s'.", html.EscapeString(category)))
	}
	if len(targets) == 0 {
		return req.Reply(ctx, fmt.Sprintf("No participants found in raids of type '%s'.", html.EscapeString(category)))
	}
	opts := h.ctrl.RenderOptions()
	mentions := make([]string, 0, len(targets))
	for _, t := range targets {
		mentions = append(mentions, opts.Participant(t.ID, t.Name))
	}
	msg := fmt.Sprintf("<b>[%s] %s</b> %s", html.EscapeString(category), html.EscapeString(text), strings.Join(mentions, " "))
	if err := h.pub.notify(ctx, "ping", FormatChannel(req.Chat), msg); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Successfully pinged %d participants from %d raids.", len(targets), events))
}

func (h *Handlers) partyFinder(ctx context.Context, req *router.Request) error {
	if len(req.RawArgs) < 4 {
		return req.Reply(ctx, `Missing arguments. Format: /raid pf "Duty Name" "Description" "Duty Finder Category" "Min iLvl"`)
	}
	a := req.RawArgs
	poster := req.From.DisplayName()
	var b strings.Builder
	b.WriteString("<b>New Party Finder Posted!</b>\n\n")
	fmt.Fprintf(&b, "<b>Party Finder: %s</b>\n", html.EscapeString(a[0]))
	fmt.Fprintf(&b, "%s\n\n", html.EscapeString(a[1]))
	fmt.Fprintf(&b, "Category: %s\n", html.EscapeString(a[2]))
	fmt.Fprintf(&b, "Minimum iLvl: %s\n", html.EscapeString(a[3]))
	fmt.Fprintf(&b, "Posted by: %s", html.EscapeString(poster))

	data := tgui.Fit(tgui.Data(callbackPrefix, actionPF, poster))
	if _, err := req.ReplyWith(ctx, b.String(), [][]kit.Button{{{Text: "Join PF", Data: data}}}); err != nil {
		return err
	}
	return req.Reply(ctx, "Party Finder info posted!")
}

func (h *Handlers) partyFinderButton(ctx context.Context, req *router.Request, payload string) error {
	return req.Answer(ctx, fmt.Sprintf("Search the Party Finder in game or message %s to join.", payload))
}

func (h *Handlers) fflogsRegister(ctx context.Context, req *router.Request) error {
	if !h.fflogs.Enabled() {
		return req.Reply(ctx, "FFLogs is not configured.")
	}
	a := req.RawArgs
	if len(a) < 2 || strings.TrimSpace(a[0]) == "" || strings.TrimSpace(a[1]) == "" {
		return req.Reply(ctx, `Missing arguments. Format: /raid fflogs register "Character Name" "Server Name" [region]`)
	}
	region := ""
	if len(a) > 2 {
		region = a[2]
	}
	msg, err := h.fflogs.Register(ctx, req.From.ID, a[0], a[1], region)
	return fail(ctx, req, html.EscapeString(msg), err)
}

func (h *Handlers) fflogsRecent(ctx context.Context, req *router.Request) error {
	if !h.fflogs.Enabled() {
		return req.Reply(ctx, "FFLogs is not configured.")
	}
	count := 0
	if len(req.Args) > 0 {
		count, _ = strconv.Atoi(req.Args[0])
	}
	logs, found, err := h.fflogs.Recent(ctx, req.From.ID, count)
	if !found {
		return req.Reply(ctx, `You have no registered characters. Use /raid fflogs register "Character Name" "Server Name" to register.`)
	}
	if err != nil {
		return fail(ctx, req, "Failed to fetch logs from FFLogs.", err)
	}
	return req.Reply(ctx, fflogs.FormatRecent(logs))
}

func (h *Handlers) fflogsStatic(ctx context.Context, req *router.Request) error {
	if !h.fflogs.Enabled() {
		return req.Reply(ctx, "FFLogs is not configured.")
	}
	if len(req.Args) < 1 {
		return req.Reply(ctx, "Missing arguments. Format: /raid fflogs static [raidId]")
	}
	ev, ok := h.ctrl.Get(req.Args[0])
	if !ok {
		return req.Reply(ctx, notFoundMsg)
	}
	st, err := h.fflogs.StaticPerformance(ctx, ev)
	if err != nil {
		return fail(ctx, req, "Failed to analyze static performance.", err)
	}
	date := ev.ScheduledAt.In(h.ctrl.Location()).Format("2006-01-02")
	return req.Reply(ctx, fflogs.FormatStatic(st, date))
}

func (h *Handlers) alive(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, "Pong! "+strconv.Itoa(len(h.ctrl.Upcoming()))+" upcoming raids.")
}

// joinButton handles "raid:join:<id>:<roleIndex>".
func (h *Handlers) joinButton(ctx context.Context, req *router.Request, payload string) error {
	id, idxStr, ok := strings.Cut(payload, ":")
	idx, err := strconv.Atoi(idxStr)
	if !ok || err != nil {
		return req.Answer(ctx, "Invalid button.")
	}
	role, ok := h.ctrl.Roles().At(idx)
	if !ok {
		return req.Answer(ctx, "Invalid role.")
	}
	res, err := h.ctrl.Join(ctx, id, req.From.ID, req.From.DisplayName(), role)
	_ = req.Answer(ctx, res.Message)
	return err
}

// cancelButton handles "raid:cancel:<id>".
func (h *Handlers) cancelButton(ctx context.Context, req *router.Request, payload string) error {
	res, err := h.ctrl.CancelSignup(ctx, payload, req.From.ID)
	switch {
	case errors.Is(err, raid.ErrNotFound):
		return req.Answer(ctx, "Raid not found!")
	case err != nil:
		_ = req.Answer(ctx, "Could not cancel your signup. Please try again.")
		return err
	}
	return req.Answer(ctx, res.Message())
}
