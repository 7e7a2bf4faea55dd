// Package output renders command results for terminals and pipes.
//
// A Renderer wraps the command's stdout/stderr pair plus an output mode.
// Mode auto picks text on a terminal and JSON everywhere else, so piped
// and scripted invocations always get machine-readable output without
// extra flags.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// OutputMode selects how command results are rendered.
type OutputMode string

// Output modes.
const (
	ModeAuto OutputMode = "auto"
	ModeText OutputMode = "text"
	ModeJSON OutputMode = "json"
)

// Mode parses a mode string from a flag or config value. Unknown values
// fall back to auto.
func Mode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ModeText
	case "json":
		return ModeJSON
	default:
		return ModeAuto
	}
}

// Renderer writes command output in the configured mode. It is not safe
// for concurrent use; commands render from a single goroutine.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   OutputMode
	styles *Styles
}

// NewRenderer creates a renderer, detecting TTY state from the output
// writer when it is a real file descriptor.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
// Tests use this to exercise both terminal and piped rendering.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	r := &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
	}
	// Color only on a terminal in a human-readable mode.
	r.styles = newStyles(isTTY && r.EffectiveMode() == ModeText)
	return r
}

// EffectiveMode resolves auto to a concrete mode: text on a terminal,
// JSON otherwise.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeJSON
}

// IsTTY reports whether the output writer is a terminal.
func (r *Renderer) IsTTY() bool {
	return r.isTTY
}

// Writer returns the underlying output writer for encoders and tables.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// ErrWriter returns the underlying error writer.
func (r *Renderer) ErrWriter() io.Writer {
	return r.errOut
}

// Styles returns the renderer's style set. Styles are plain pass-through
// when output is not a terminal.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Println writes a line to the output writer.
func (r *Renderer) Println(msg string) {
	fmt.Fprintln(r.out, msg)
}

// Printf writes formatted output to the output writer.
func (r *Renderer) Printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// Header writes a styled section header. Level 1 is the command title,
// level 2 a section within it.
func (r *Renderer) Header(level int, text string) {
	switch level {
	case 1:
		r.Println(r.styles.Header1.Render(text))
	default:
		r.Println(r.styles.Header2.Render(text))
	}
}

// Success writes a checkmarked success line.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render("✓ " + msg))
}

// Warning writes a warning line to the error writer.
func (r *Renderer) Warning(msg string) {
	fmt.Fprintln(r.errOut, r.styles.Warning.Render("⚠ "+msg))
}

// Error writes an error line to the error writer.
func (r *Renderer) Error(msg string) {
	fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+msg))
}

// Muted writes a de-emphasized line.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// StatusLine writes one action's status as an indented symbol line,
// with an optional trailing detail in muted style.
func (r *Renderer) StatusLine(name, status, detail string) {
	sym := r.StatusSymbol(status)
	line := fmt.Sprintf("  %s %s", sym, name)
	if detail != "" {
		line += "  " + r.styles.Muted.Render(detail)
	}
	r.Println(line)
}

// StatusSymbol returns the styled one-character marker for a status.
func (r *Renderer) StatusSymbol(status string) string {
	switch strings.ToLower(status) {
	case "successful", "success":
		return r.styles.Success.Render("✓")
	case "failed", "error":
		return r.styles.Error.Render("✗")
	case "skipped":
		return r.styles.Muted.Render("-")
	case "cancelled":
		return r.styles.Warning.Render("⊘")
	case "running":
		return r.styles.Info.Render("•")
	default:
		return r.styles.Muted.Render("·")
	}
}

// JSON encodes v as indented JSON to the output writer.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// JSONLine encodes v as a single compact JSON line, for streamed events.
func (r *Renderer) JSONLine(v any) error {
	return json.NewEncoder(r.out).Encode(v)
}
