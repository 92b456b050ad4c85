// Package logging builds MFP's structured logger. One construction
// point: a single zap logger wired at startup and passed down rather
// than grabbed as a package global from business-logic code.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-shaped zap logger. verbose drops the minimum
// level to debug; otherwise info and above only.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Redacted never logs the value itself, only its presence, to keep
// snippet code and credential material out of log sinks. Components
// that must explain a decision ("stripped Authorization header") log
// the decision, never the payload.
func Redacted(present bool) string {
	if present {
		return "<redacted>"
	}
	return "<absent>"
}
