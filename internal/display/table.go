package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// BorderStyle defines table border characters
type BorderStyle struct {
	TopLeft, TopRight, BottomLeft, BottomRight string
	Horizontal, Vertical                       string
	Cross, TopTee, BottomTee, LeftTee, RightTee string
}

var (
	ASCIIBorderStyle = BorderStyle{
		TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		Horizontal: "-", Vertical: "|",
		Cross: "+", TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
	}

	RoundedBorderStyle = BorderStyle{
		TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
		Horizontal: "─", Vertical: "│",
		Cross: "┼", TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
	}

	NoBorderStyle = BorderStyle{}
)

// BorderStyleByName maps a table style name to its borders
func BorderStyleByName(name string) BorderStyle {
	switch TableStyleName(name) {
	case TableStyleRounded:
		return RoundedBorderStyle
	case TableStyleMinimal:
		return NoBorderStyle
	default:
		return ASCIIBorderStyle
	}
}

const cellPadding = 1

// Table renders rows as an aligned text table
type Table struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	border     BorderStyle
	colors     *ColorSystem
	theme      ColorTheme
	maxWidth   int
}

// NewTable creates a table. colors may be nil for plain output.
func NewTable(colors *ColorSystem, theme ColorTheme, border BorderStyle) *Table {
	return &Table{
		alignments: make(map[int]Alignment),
		border:     border,
		colors:     colors,
		theme:      theme,
		maxWidth:   terminalWidth(),
	}
}

// SetHeaders sets the table headers
func (t *Table) SetHeaders(headers ...string) *Table {
	t.headers = headers
	return t
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) *Table {
	t.rows = append(t.rows, cells)
	return t
}

// AlignRight right-aligns the given columns, e.g. counts and sizes
func (t *Table) AlignRight(columns ...int) *Table {
	for _, c := range columns {
		t.alignments[c] = AlignRight
	}
	return t
}

// SetMaxWidth bounds the rendered width; 0 disables the limit
func (t *Table) SetMaxWidth(width int) *Table {
	t.maxWidth = width
	return t
}

// Render returns the formatted table as a string
func (t *Table) Render() string {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return ""
	}

	widths := t.fit(t.columnWidths())
	var b strings.Builder

	if t.border.Horizontal != "" {
		b.WriteString(t.rule(widths, t.border.TopLeft, t.border.TopTee, t.border.TopRight))
	}
	if len(t.headers) > 0 {
		b.WriteString(t.renderRow(t.headers, widths, true))
		if t.border.Horizontal != "" {
			b.WriteString(t.rule(widths, t.border.LeftTee, t.border.Cross, t.border.RightTee))
		}
	}
	for _, row := range t.rows {
		b.WriteString(t.renderRow(row, widths, false))
	}
	if t.border.Horizontal != "" {
		b.WriteString(t.rule(widths, t.border.BottomLeft, t.border.BottomTee, t.border.BottomRight))
	}
	return b.String()
}

// RenderTo renders the table to w
func (t *Table) RenderTo(w io.Writer) {
	fmt.Fprint(w, t.Render())
}

func (t *Table) columnCount() int {
	n := len(t.headers)
	for _, row := range t.rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// columnWidths returns the content width of every column
func (t *Table) columnWidths() []int {
	widths := make([]int, t.columnCount())
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

// fit shrinks the widest columns until the table fits maxWidth
func (t *Table) fit(widths []int) []int {
	if t.maxWidth <= 0 {
		return widths
	}
	const minWidth = 4
	for t.totalWidth(widths) > t.maxWidth {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func (t *Table) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + 2*cellPadding
	}
	if t.border.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (t *Table) rule(widths []int, left, mid, right string) string {
	var b strings.Builder
	b.WriteString(left)
	for i, w := range widths {
		b.WriteString(strings.Repeat(t.border.Horizontal, w+2*cellPadding))
		if i < len(widths)-1 {
			b.WriteString(mid)
		}
	}
	b.WriteString(right)
	b.WriteString("\n")
	return b.String()
}

func (t *Table) renderRow(row []string, widths []int, header bool) string {
	var b strings.Builder
	b.WriteString(t.border.Vertical)
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		b.WriteString(t.formatCell(cell, w, t.alignments[i], header))
		if t.border.Vertical != "" {
			b.WriteString(t.border.Vertical)
		} else if i < len(widths)-1 {
			b.WriteString(" ")
		}
	}
	return strings.TrimRight(b.String(), " ") + "\n"
}

// formatCell pads first and colors last so escape codes do not count as width
func (t *Table) formatCell(content string, width int, alignment Alignment, header bool) string {
	if utf8.RuneCountInString(content) > width {
		runes := []rune(content)
		if width > 3 {
			content = string(runes[:width-3]) + "..."
		} else {
			content = string(runes[:width])
		}
	}

	pad := strings.Repeat(" ", width-utf8.RuneCountInString(content))
	if alignment == AlignRight {
		content = pad + content
	} else {
		content += pad
	}

	if header && t.colors != nil {
		content = t.colors.Colorize(content, t.theme.Primary)
	}
	side := strings.Repeat(" ", cellPadding)
	return side + content + side
}

// terminalWidth returns the width of the terminal on stdout, or 0 when stdout is not one
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}
