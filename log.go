/*
Package loader – logging interface.

The loader logs through a tiny interface so that it can be driven by zerolog in
the CLI and by a recording function in tests.
*/
package loader

import (
	"github.com/rs/zerolog"
)

// Logger is the interface callers may supply to the Table and Uploader.
// Each method receives a structured context map (may be nil).
type Logger interface {
	Trace(message string, ctx map[string]any)
	Info(message string, ctx map[string]any)
	Error(message string, ctx map[string]any)
	Data(message string, ctx map[string]any)
}

// ZeroLogger forwards to a zerolog.Logger. Trace maps to zerolog's trace level
// and Data to debug.
type ZeroLogger struct {
	L zerolog.Logger
}

// NewZeroLogger wraps l.
func NewZeroLogger(l zerolog.Logger) ZeroLogger { return ZeroLogger{L: l} }

func (z ZeroLogger) Trace(msg string, ctx map[string]any) { z.L.Trace().Fields(ctx).Msg(msg) }
func (z ZeroLogger) Data(msg string, ctx map[string]any)  { z.L.Debug().Fields(ctx).Msg(msg) }
func (z ZeroLogger) Info(msg string, ctx map[string]any)  { z.L.Info().Fields(ctx).Msg(msg) }
func (z ZeroLogger) Error(msg string, ctx map[string]any) { z.L.Error().Fields(ctx).Msg(msg) }

// FuncLogger wraps a plain function: func(level, message string, ctx map[string]any).
type FuncLogger struct {
	Fn func(level, message string, ctx map[string]any)
}

func (f FuncLogger) Trace(msg string, ctx map[string]any) { f.Fn("trace", msg, ctx) }
func (f FuncLogger) Data(msg string, ctx map[string]any)  { f.Fn("data", msg, ctx) }
func (f FuncLogger) Info(msg string, ctx map[string]any)  { f.Fn("info", msg, ctx) }
func (f FuncLogger) Error(msg string, ctx map[string]any) { f.Fn("error", msg, ctx) }

// NopLogger silently discards everything.
type NopLogger struct{}

func (NopLogger) Trace(string, map[string]any) {}
func (NopLogger) Data(string, map[string]any)  {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}

func orNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
