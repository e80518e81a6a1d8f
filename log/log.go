// Package log provides the key/value structured logging convention
// used throughout this module: log.Info("msg", "k", v, ...).
package log

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// out is os.Stderr wrapped for ANSI passthrough on consoles that need
// it (plain pass-through elsewhere); isTerminal gates whether level
// prefixes get colored at all, so piping to a file or another process
// never emits escape codes.
var (
	out        = colorable.NewColorableStderr()
	isTerminal = isatty.IsTerminal(os.Stderr.Fd())
	std        = log.New(out, "", log.LstdFlags)
)

const (
	colorGray   = "\x1b[90m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
	colorReset  = "\x1b[0m"
)

// Info logs an informational message with key/value context pairs.
func Info(msg string, kv ...interface{}) {
	std.Println(format("INFO", colorGray, msg, kv))
}

// Warn logs a warning with key/value context pairs.
func Warn(msg string, kv ...interface{}) {
	std.Println(format("WARN", colorYellow, msg, kv))
}

// Error logs an error with key/value context pairs and the call-site
// frame, for diagnosing corruption / abort paths.
func Error(msg string, kv ...interface{}) {
	frame := stack.Caller(1)
	kv = append(kv, "at", fmt.Sprintf("%+v", frame))
	std.Println(format("ERROR", colorRed, msg, kv))
}

func format(level, color, msg string, kv []interface{}) string {
	var b strings.Builder
	if isTerminal {
		b.WriteString(color)
		b.WriteString(level)
		b.WriteString(colorReset)
	} else {
		b.WriteString(level)
	}
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
