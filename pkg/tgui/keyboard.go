package tgui

import kit "raidbot/internal/transport"

// Grid lays buttons out perRow to a row. The last row may be short.
func Grid(buttons []kit.Button, perRow int) [][]kit.Button {
	if perRow <= 0 {
		perRow = 1
	}
	var rows [][]kit.Button
	for len(buttons) > 0 {
		n := min(perRow, len(buttons))
		rows = append(rows, buttons[:n:n])
		buttons = buttons[n:]
	}
	return rows
}
