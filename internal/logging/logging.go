// Package logging builds the zap backed logr.Logger used by the command line
// tools.
package logging

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MaxVerbosity is the highest logr V level emitted in verbose mode. Register
// traffic is logged at V(2).
const MaxVerbosity = 2

// New returns a logger writing to w. Verbose selects the human readable
// console encoder and enables V levels up to MaxVerbosity; otherwise JSON
// lines at info level are written.
func New(w io.Writer, verbose bool) logr.Logger {
	var encoder zapcore.Encoder
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level.SetLevel(zapcore.Level(-MaxVerbosity))
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zapr.NewLogger(zap.New(core))
}
