// Package tgui holds small Telegram UI helpers: callback data encoding in
// the "prefix:action:payload" form and inline keyboard layout.
package tgui
