package store

import (
	"fmt"
	"strings"
)

// Command assembles a single remote shell line with every argument quoted
// centrally, so callers never interpolate raw values into command strings.
type Command struct {
	line strings.Builder
}

// NewCommand starts a command line from a program name and its arguments.
func NewCommand(name string, args ...string) *Command {
	c := &Command{}
	c.line.WriteString(Quote(name))
	return c.Arg(args...)
}

// Arg appends quoted arguments.
func (c *Command) Arg(args ...string) *Command {
	for _, a := range args {
		c.line.WriteByte(' ')
		c.line.WriteString(Quote(a))
	}
	return c
}

// Pipe feeds the command's stdout into another program.
func (c *Command) Pipe(name string, args ...string) *Command {
	c.line.WriteString(" | ")
	c.line.WriteString(Quote(name))
	return c.Arg(args...)
}

// RedirectTo sends stdout to a file on the remote side.
func (c *Command) RedirectTo(path string) *Command {
	c.line.WriteString(" > ")
	c.line.WriteString(Quote(path))
	return c
}

func (c *Command) String() string {
	return c.line.String()
}

// Quote single-quotes s for a POSIX shell. Embedded single quotes become
// the '\'' dance.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\r'\"\\$`&|;<>()*?[]#~%{}!") {
		return s
	}
	return fmt.Sprintf("'%s'", strings.ReplaceAll(s, "'", `'\''`))
}
