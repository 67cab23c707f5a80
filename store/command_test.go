package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotePlain(t *testing.T) {
	assert.Equal(t, "plan.json", Quote("plan.json"))
	assert.Equal(t, "/plans/inbox", Quote("/plans/inbox"))
}

func TestQuoteSpacesAndQuotes(t *testing.T) {
	assert.Equal(t, "'week 1.json'", Quote("week 1.json"))
	assert.Equal(t, `'it'\''s.json'`, Quote("it's.json"))
	assert.Equal(t, "''", Quote(""))
	assert.Equal(t, "'a$b'", Quote("a$b"))
}

func TestCommandLine(t *testing.T) {
	c := NewCommand("sha256sum", "/plans/inbox/week 1.json.part")
	assert.Equal(t, "sha256sum '/plans/inbox/week 1.json.part'", c.String())
}

func TestCommandPipeAndRedirect(t *testing.T) {
	c := NewCommand("cat", "a b").Pipe("gzip", "-c").RedirectTo("/tmp/out gz")
	assert.Equal(t, "cat 'a b' | gzip -c > '/tmp/out gz'", c.String())
}

func TestCommandManyArgs(t *testing.T) {
	c := NewCommand("mkdir", "-p").Arg("/r/inbox", "/r/outbox")
	assert.Equal(t, "mkdir -p /r/inbox /r/outbox", c.String())
}
