// Package diagnostics holds the structured records the stream and its
// transmitters emit for operators. They are JSON friendly so the preview hub
// can forward them as is.
package diagnostics

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes emitted by this module.
const (
	StreamDesync   = "STREAM.DESYNC"
	StreamStarted  = "STREAM.STARTED"
	StreamReset    = "STREAM.RESET"
	TransmitFailed = "TRANSMIT.FAILED"
	PowerLimited   = "POWER.LIMITED"
	PatternDone    = "PATTERN.DONE"
	PatternRunning = "PATTERN.RUNNING"
	PatternUnknown = "PATTERN.UNKNOWN"
)

type Diagnostic struct {
	Time           time.Time      `json:"time" msgpack:"time"`
	Severity       Severity       `json:"severity" msgpack:"severity"`
	Code           string         `json:"code" msgpack:"code"`
	Summary        string         `json:"summary" msgpack:"summary"`
	Detail         string         `json:"detail,omitempty" msgpack:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty" msgpack:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty" msgpack:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty" msgpack:"evidence,omitempty"`
}

// Sink receives diagnostics. Implementations must not block the caller;
// the stream calls it from its hot paths.
type Sink func(Diagnostic)

// Discard drops everything.
func Discard(Diagnostic) {}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Code, d.Summary)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", d.Severity, d.Code, d.Summary, d.Detail)
}

// Level maps a severity onto the logger level used when a diagnostic is
// also written to the log.
func (s Severity) Level() zerolog.Level {
	switch s {
	case Warn:
		return zerolog.WarnLevel
	case Err:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// Log writes d to l at the level matching its severity.
func Log(l zerolog.Logger, d Diagnostic) {
	ev := l.WithLevel(d.Severity.Level()).Str("code", d.Code)
	if d.Detail != "" {
		ev = ev.Str("detail", d.Detail)
	}
	if len(d.Evidence) > 0 {
		ev = ev.Fields(d.Evidence)
	}
	ev.Msg(d.Summary)
}

// Tee fans a diagnostic out to every sink in order.
func Tee(sinks ...Sink) Sink {
	return func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s(d)
			}
		}
	}
}

// Logger returns a sink that writes to l.
func Logger(l zerolog.Logger) Sink {
	return func(d Diagnostic) { Log(l, d) }
}
