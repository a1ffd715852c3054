package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsliepen/lightbts/internal/mail"
)

func TestBareAddress(t *testing.T) {
	assert.Equal(t, "a@example.com", bareAddress("Alice <a@example.com>"))
	assert.Equal(t, "a@example.com", bareAddress("a@example.com"))
	assert.Equal(t, "a@example.com", bareAddress(" a@example.com "))
}

func TestBuildControl(t *testing.T) {
	m := BuildControl("Demo", "bugs@example.com", "alice@example.com",
		"Re: [Demo#3] it crashes", "orig@example.com", "Thank you.\n")

	assert.True(t, m.IsControl(), "engine messages must carry the control marker")
	assert.Equal(t, "bugs@example.com", m.From())
	assert.Equal(t, "alice@example.com", m.Header(mail.HeaderTo))
	assert.Equal(t, "Re: [Demo#3] it crashes", m.Subject())
	assert.Equal(t, "orig@example.com", m.InReplyTo())
	assert.NotEmpty(t, m.MessageID())
	assert.NotZero(t, m.Date())
	assert.Equal(t, "Thank you.\n", m.Body())

	// A control message must survive its own serialization.
	parsed, err := mail.Parse(m.Bytes())
	require.NoError(t, err)
	assert.True(t, parsed.IsControl())
	assert.Equal(t, m.MessageID(), parsed.MessageID())
}

func TestBuildControl_NoParent(t *testing.T) {
	m := BuildControl("Demo", "bugs@example.com", "alice@example.com", "subject", "", "body")
	assert.Empty(t, m.InReplyTo())
}
