// Package logging bootstraps the process-wide zap logger and hands out
// category-tagged children, grounded on cmd/nerd/main.go's zap bootstrap
// (zap.NewProductionConfig, debug-level override under a verbose flag).
// codeNERD's own logging package additionally splits output into one log
// file per category; that scheme is not reproduced here; a single
// structured zap sink with a "category" field carries the same information
// without a parallel file-per-category filesystem layout, since none of
// this engine's categories need independent rotation or on/off toggling at
// runtime the way codeNERD's did across dozens of shard kinds.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category tags a logical subsystem within the engine.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryKB        Category = "kb"
	CategoryEngine    Category = "engine"
	CategoryRouter    Category = "router"
	CategoryQueue     Category = "queue"
	CategoryBroadcast Category = "broadcast"
	CategoryLLM       Category = "llmadapter"
	CategoryWatcher   Category = "ruleswatcher"
)

var base = zap.NewNop()

// Init builds the process-wide base logger. Call once at startup; before
// Init runs, Get returns a no-op logger so packages may hold a *zap.Logger
// reference safely during package-level initialization.
func Init(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base = l
	return nil
}

// Get returns a category-scoped child of the process-wide base logger.
func Get(cat Category) *zap.Logger {
	return base.With(zap.String("category", string(cat)))
}

// Sync flushes the base logger. Errors are discarded: syncing stdout/stderr
// on some platforms (notably macOS) returns a harmless ENOTTY-class error.
func Sync() {
	_ = base.Sync()
}
