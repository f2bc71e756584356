package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"markyt-agent/internal/models"
)

// ANSI styles used by the CLI.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

var ansiPattern = regexp.MustCompile("\033\\[[0-9;]*m")

// Output writes command results as text or, with --json, as indented JSON.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates the output of cmd.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	return &Output{
		writer:       w,
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && colorSupported(w),
	}
}

// colorSupported reports whether w is a terminal that accepts ANSI styles.
// NO_COLOR disables styling regardless of the terminal.
func colorSupported(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

func (o *Output) Success(format string, args ...interface{}) { o.line(ColorGreen, format, args...) }
func (o *Output) Error(format string, args ...interface{})   { o.line(ColorRed, format, args...) }
func (o *Output) Warning(format string, args ...interface{}) { o.line(ColorYellow, format, args...) }
func (o *Output) Info(format string, args ...interface{})    { o.line(ColorCyan, format, args...) }
func (o *Output) Bold(format string, args ...interface{})    { o.line(ColorBold, format, args...) }
func (o *Output) Dim(format string, args ...interface{})     { o.line(ColorDim, format, args...) }

func (o *Output) line(style, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.paint(style, fmt.Sprintf(format, args...)))
}

// paint wraps text in style when color is enabled.
func (o *Output) paint(style, text string) string {
	if !o.colorEnabled || text == "" {
		return text
	}
	return style + text + ColorReset
}

func (o *Output) Green(text string) string    { return o.paint(ColorGreen, text) }
func (o *Output) Red(text string) string      { return o.paint(ColorRed, text) }
func (o *Output) Yellow(text string) string   { return o.paint(ColorYellow, text) }
func (o *Output) BoldText(text string) string { return o.paint(ColorBold, text) }

// signed paints text green for gains and red for losses.
func (o *Output) signed(value float64, text string) string {
	switch {
	case value > 0:
		return o.Green(text)
	case value < 0:
		return o.Red(text)
	default:
		return text
	}
}

// FormatChange formats a price change and its percentage with color.
func (o *Output) FormatChange(change, changePct float64) string {
	return o.signed(change, FormatChange(change, changePct))
}

// FormatPercent formats percentage with color.
func (o *Output) FormatPercent(pct float64) string {
	return o.signed(pct, FormatPercent(pct))
}

// Trend renders a trend label with an arrow.
func (o *Output) Trend(trend models.Trend) string {
	switch trend {
	case models.TrendUp:
		return o.Green("▲ " + string(trend))
	case models.TrendDown:
		return o.Red("▼ " + string(trend))
	default:
		return string(trend)
	}
}

// Table prints aligned columns. Numeric columns marked with AlignRight are
// padded on the left.
type Table struct {
	headers []string
	right   map[int]bool
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{
		headers: headers,
		right:   make(map[int]bool),
		output:  output,
	}
}

// AlignRight right-aligns the given zero-based columns.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// AddRow adds a row to the table. Extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], displayWidth(row[i]))
		}
	}

	t.printRow(t.headers, widths, ColorBold)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("─", w)
	}
	t.output.Println(t.output.paint(ColorDim, strings.Join(seps, "──")))

	for _, row := range t.rows {
		t.printRow(row, widths, "")
	}
}

func (t *Table) printRow(cells []string, widths []int, style string) {
	parts := make([]string, 0, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", max(0, w-displayWidth(cell)))
		if t.right[i] {
			cell = pad + cell
		} else {
			cell += pad
		}
		if style != "" {
			cell = t.output.paint(style, cell)
		}
		parts = append(parts, cell)
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

// displayWidth counts the runes of s without color codes.
func displayWidth(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}

// Box draws a framed block with a title row, used for single-symbol reports.
func (o *Output) Box(title string, content []string) {
	inner := displayWidth(title)
	for _, line := range content {
		inner = max(inner, displayWidth(line))
	}

	h, v, tl, tr, ml, mr, bl, br := "─", "│", "┌", "┐", "├", "┤", "└", "┘"
	if !o.colorEnabled {
		h, v, tl, tr, ml, mr, bl, br = "-", "|", "+", "+", "+", "+", "+", "+"
	}
	border := strings.Repeat(h, inner+2)
	row := func(text, style string) {
		pad := strings.Repeat(" ", inner-displayWidth(text))
		if style != "" {
			text = o.paint(style, text)
		}
		o.Printf("%s %s%s %s\n", o.paint(ColorDim, v), text, pad, o.paint(ColorDim, v))
	}

	o.Println(o.paint(ColorDim, tl+border+tr))
	row(title, ColorBold)
	o.Println(o.paint(ColorDim, ml+border+mr))
	for _, line := range content {
		row(line, "")
	}
	o.Println(o.paint(ColorDim, bl+border+br))
}
