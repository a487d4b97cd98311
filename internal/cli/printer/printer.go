package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Out is where the helpers write. Tests swap it for a buffer.
var Out io.Writer = os.Stdout

// Success prints a green line with a checkmark prefix.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Out, msg)
}

func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Out, msg)
}

// Step marks one step of a multi-step operation.
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

type reportedError struct{ title string }

func (e *reportedError) Error() string { return e.title }

// Reported reports whether err was already printed by Error.
func Reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// Error prints title, explanation and suggestions to stderr and returns a
// short error for cobra, which runs with SilenceErrors.
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}
	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, s := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, s)
			}
		}
	}
	return &reportedError{title: title}
}

// Status colors a course or job status word.
func Status(s string) string {
	switch s {
	case "complete", "succeeded":
		return green.Sprint(s)
	case "failed":
		return red.Sprint(s)
	case "retrying":
		return yellow.Sprint(s)
	case "":
		return faint.Sprint("-")
	default:
		return cyan.Sprint(s)
	}
}

// Faint dims secondary details such as ids.
func Faint(s string) string {
	return faint.Sprint(s)
}
