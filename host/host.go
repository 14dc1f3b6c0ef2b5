// Package host renders job results for the operator.
//
// Results are written through a HostUI, one method per kind of line, so the
// same rendering can drive a terminal, a buffer in tests or nothing at all:
//
//   - WriteLine: output objects and section headers
//   - WriteErrorLine, WriteWarningLine, WriteInformationLine,
//     WriteVerboseLine, WriteDebugLine: stream records
//
// # Layout
//
// Each non-empty section is a header followed by its lines, in this order:
//
//	Script Output:
//	<output line>...
//	Script Error:
//	<error message>...
//	Script Warning:
//	<warning message>...
//
// Empty sections are omitted entirely. Failures are reported on a single
// line, e.g. "Error on script execution: <reason>".
//
// # Default Implementation
//
// NewConsole writes everything to one io.Writer, normally stdout. NullHostUI
// discards everything.
package host

import (
	"fmt"
	"io"
	"sync"

	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/pipeline"
)

// HostUI receives rendered lines.
type HostUI interface {
	WriteLine(value string)
	WriteErrorLine(message string)
	WriteWarningLine(message string)
	WriteInformationLine(message string)
	WriteVerboseLine(message string)
	WriteDebugLine(message string)
}

// Console writes every line to a single writer. It is safe for concurrent use.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a Console on w.
func NewConsole(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, s)
}

// WriteLine writes an output line.
func (c *Console) WriteLine(value string) { c.println(value) }

// WriteErrorLine writes an error record.
func (c *Console) WriteErrorLine(message string) { c.println(message) }

// WriteWarningLine writes a warning record.
func (c *Console) WriteWarningLine(message string) { c.println(message) }

// WriteInformationLine writes an information record.
func (c *Console) WriteInformationLine(message string) { c.println(message) }

// WriteVerboseLine writes a verbose record.
func (c *Console) WriteVerboseLine(message string) { c.println(message) }

// WriteDebugLine writes a debug record.
func (c *Console) WriteDebugLine(message string) { c.println(message) }

// NullHostUI discards everything.
type NullHostUI struct{}

func (NullHostUI) WriteLine(string) {}
func (NullHostUI) WriteErrorLine(string) {}
func (NullHostUI) WriteWarningLine(string) {}
func (NullHostUI) WriteInformationLine(string) {}
func (NullHostUI) WriteVerboseLine(string) {}
func (NullHostUI) WriteDebugLine(string) {}

// Section headers.
const (
	HeaderOutput      = "Script Output:"
	HeaderError       = "Script Error:"
	HeaderWarning     = "Script Warning:"
	HeaderInformation = "Script Information:"
	HeaderVerbose     = "Script Verbose:"
	HeaderDebug       = "Script Debug:"
)

// StreamHeader returns the section header of a stream.
func StreamHeader(st messages.StreamType) string {
	switch st {
	case messages.StreamError:
		return HeaderError
	case messages.StreamWarning:
		return HeaderWarning
	case messages.StreamInformation:
		return HeaderInformation
	case messages.StreamVerbose:
		return HeaderVerbose
	case messages.StreamDebug:
		return HeaderDebug
	}
	return "Script " + string(st) + ":"
}

func writerFor(ui HostUI, st messages.StreamType) func(string) {
	switch st {
	case messages.StreamError:
		return ui.WriteErrorLine
	case messages.StreamWarning:
		return ui.WriteWarningLine
	case messages.StreamInformation:
		return ui.WriteInformationLine
	case messages.StreamVerbose:
		return ui.WriteVerboseLine
	case messages.StreamDebug:
		return ui.WriteDebugLine
	}
	return ui.WriteLine
}

// RenderOutput writes the output section followed by one section per stream
// in streams order. Empty sections are skipped.
func RenderOutput(ui HostUI, out *pipeline.Output, streams []messages.StreamType) {
	if out == nil {
		return
	}
	if len(out.Lines) > 0 {
		ui.WriteLine(HeaderOutput)
		for _, line := range out.Lines {
			ui.WriteLine(line)
		}
	}
	for _, st := range streams {
		msgs := out.Messages(st)
		if len(msgs) == 0 {
			continue
		}
		ui.WriteLine(StreamHeader(st))
		write := writerFor(ui, st)
		for _, m := range msgs {
			write(m)
		}
	}
}

// RenderJobFailure reports a job that ended in Error or Cancelled.
func RenderJobFailure(ui HostUI, job *pipeline.Job) {
	ui.WriteLine("Error on script execution: " + job.Reason())
}

// RenderCreationFailure reports a runspace that failed to start.
func RenderCreationFailure(ui HostUI, detail string) {
	ui.WriteLine("Error on runspace creation: " + detail)
}
