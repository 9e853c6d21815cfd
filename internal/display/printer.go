package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Printer writes command output in the configured format
type Printer struct {
	config *Config
	format OutputFormat
	colors *ColorSystem
	theme  ColorTheme
	out    io.Writer
}

// NewPrinter creates a printer from config
func NewPrinter(config *Config) (*Printer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	format, _ := ParseOutputFormat(config.OutputFormat)

	return &Printer{
		config: config,
		format: format,
		colors: NewColorSystem(config.Writer, config.ColorEnabled),
		theme:  GetThemeByName(config.Theme),
		out:    config.Writer,
	}, nil
}

// Format returns the selected output format
func (p *Printer) Format() OutputFormat {
	return p.format
}

// Structured reports whether results should be encoded instead of drawn
func (p *Printer) Structured() bool {
	return p.format != FormatTable
}

// Writer returns the underlying output
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Success prints a success message
func (p *Printer) Success(message string) {
	p.status("OK", p.theme.Success, message, false)
}

// Info prints an informational message
func (p *Printer) Info(message string) {
	p.status("INFO", p.theme.Info, message, false)
}

// Warning prints a warning message
func (p *Printer) Warning(message string) {
	p.status("WARN", p.theme.Warning, message, true)
}

// Error prints an error message
func (p *Printer) Error(message string) {
	p.status("ERROR", p.theme.Error, message, true)
}

// status lines are suppressed in quiet mode and for structured output,
// except warnings and errors
func (p *Printer) status(label string, clr Color, message string, always bool) {
	if !always && (p.config.Quiet || p.Structured()) {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.colors.Colorize(fmt.Sprintf("%-5s", label), clr), message)
}

// Header prints an underlined title
func (p *Printer) Header(title string) {
	if p.Structured() {
		return
	}
	fmt.Fprintln(p.out, p.colors.Colorize(title, p.theme.Primary))
	fmt.Fprintln(p.out, strings.Repeat("=", utf8.RuneCountInString(title)))
}

// KeyValues prints aligned "key: value" lines in the given order
func (p *Printer) KeyValues(pairs [][2]string) {
	width := 0
	for _, kv := range pairs {
		if n := utf8.RuneCountInString(kv[0]); n > width {
			width = n
		}
	}
	for _, kv := range pairs {
		key := kv[0] + ":" + strings.Repeat(" ", width-utf8.RuneCountInString(kv[0]))
		fmt.Fprintf(p.out, "  %s %s\n", p.colors.Colorize(key, p.theme.Muted), kv[1])
	}
}

// NewTable creates a table in the printer's style
func (p *Printer) NewTable() *Table {
	return NewTable(p.colors, p.theme, BorderStyleByName(p.config.TableStyle))
}

// Encode writes v as JSON or YAML. Table format falls back to YAML.
func (p *Printer) Encode(v interface{}) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal output to JSON: %w", err)
		}
	default:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal output to YAML: %w", err)
		}
		return enc.Close()
	}
	return nil
}

// Colorize exposes the printer's color system
func (p *Printer) Colorize(text string, clr Color) string {
	return p.colors.Colorize(text, clr)
}

// Theme returns the active theme
func (p *Printer) Theme() ColorTheme {
	return p.theme
}

// HumanBytes formats a byte count with binary units
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
