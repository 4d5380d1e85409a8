// Package logx configures raidbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output readable
// (short timestamp and caller), file output JSON-structured, and optionally
// mirrors warnings into a Telegram log chat with a min level and rate limit.
package logx
