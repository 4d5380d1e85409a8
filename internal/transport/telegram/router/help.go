package router

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// helpText renders help in HTML parse mode.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root := m.root
	alias := m.alias
	m.mu.RUnlock()

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok2 := alias[strings.ToLower(p)]; ok2 && leaf != nil && leaf.cmd != nil {
				cur = leaf
				full = splitRoute(leaf.cmd.Route)
				break
			}
			return helpUnknownHTML()
		}
		cur = n
		full = append(full, n.name)
	}

	if len(path) == 0 {
		return helpTopHTML(root)
	}
	return helpNodeHTML(cur, full)
}

func helpUnknownHTML() string {
	return "❓ <b>Unknown command</b>\nType <code>/help</code> to list commands."
}

func helpTopHTML(root *cmdNode) string {
	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;cmd&gt;</code> for details.",
		"",
	}
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		suffix := ""
		if desc := summarizeNodeDesc(n); desc != "" {
			suffix = " - " + html.EscapeString(desc)
		}
		lines = append(lines, "• <code>/"+html.EscapeString(name)+"</code>"+suffix)
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func helpNodeHTML(cur *cmdNode, full []string) string {
	title := "/" + strings.Join(full, " ")
	lines := []string{fmt.Sprintf("📚 <b>Help</b> <code>%s</code>", html.EscapeString(title))}

	if cur != nil && cur.cmd != nil {
		c := cur.cmd
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
		if short := buildShortcuts(*c); len(short) > 0 {
			lines = append(lines, "", "<b>Shortcut</b>")
			for _, s := range short {
				lines = append(lines, "• <code>/"+html.EscapeString(s)+"</code>")
			}
		}
	} else {
		lines = append(lines, "Command group.")
	}

	if cur != nil && len(cur.children) > 0 {
		lines = append(lines, "", "<b>Subcommands</b>")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			cmd := "/" + strings.Join(append(append([]string(nil), full...), name), " ")
			suffix := ""
			if desc := summarizeNodeDesc(n); desc != "" {
				suffix = " - " + html.EscapeString(desc)
			}
			lines = append(lines, "• <code>"+html.EscapeString(cmd)+"</code>"+suffix)
		}
	}

	return strings.Join(filterEmpty(lines), "\n")
}

func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	// For groups, show the first few subcommands as a hint.
	limit := min(3, len(kids))
	s := strings.Join(kids[:limit], ", ")
	if len(kids) > limit {
		s += ", …"
	}
	return "subcommands: " + s
}

func buildShortcuts(c Command) []string {
	out := make([]string, 0, 4)
	seen := map[string]bool{}
	route := splitRoute(c.Route)
	if menu, ok := telegramCommandNameFromRoute(route); ok && len(route) > 1 {
		out = append(out, menu)
		seen[menu] = true
	}
	for _, a := range c.Aliases {
		a = sanitizeTelegramCommand(a)
		if a != "" && !seen[a] {
			out = append(out, a)
			seen[a] = true
		}
	}
	sort.Strings(out)
	return out
}

// filterEmpty drops blank lines except single separators.
func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	prevBlank := true
	for _, s := range in {
		blank := strings.TrimSpace(s) == ""
		if blank && prevBlank {
			continue
		}
		out = append(out, s)
		prevBlank = blank
	}
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return out
}
