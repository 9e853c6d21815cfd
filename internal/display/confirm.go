package display

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotInteractive is returned when a confirmation is needed but prompts are disabled
var ErrNotInteractive = errors.New("confirmation required: rerun with --auto-approve to proceed without a prompt")

// Confirmation asks a yes/no question before a destructive operation
type Confirmation struct {
	Title   string
	Details []string
	Prompt  string
}

// Confirm shows c and reads the answer. Anything but y/yes is a refusal.
func (p *Printer) Confirm(c Confirmation) (bool, error) {
	if !p.config.Interactive {
		return false, ErrNotInteractive
	}

	if c.Title != "" {
		fmt.Fprintln(p.out, p.colors.Colorize(c.Title, p.theme.Warning))
	}
	for _, d := range c.Details {
		fmt.Fprintf(p.out, "  - %s\n", d)
	}
	prompt := c.Prompt
	if prompt == "" {
		prompt = "Continue?"
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)

	line, err := bufio.NewReader(p.config.Reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
