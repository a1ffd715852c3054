package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsliepen/lightbts/internal/hooks"
	"github.com/gsliepen/lightbts/internal/index"
	"github.com/gsliepen/lightbts/internal/mail"
	"github.com/gsliepen/lightbts/internal/models"
)

// recordingTransport captures outgoing mail instead of delivering it.
type recordingTransport struct {
	sent []sentMail
}

type sentMail struct {
	from string
	to   []string
	raw  []byte
}

func (r *recordingTransport) Send(_ context.Context, from string, to []string, raw []byte) error {
	r.sent = append(r.sent, sentMail{from: from, to: to, raw: raw})
	return nil
}

const testConfig = `[core]
project = Demo
admin = admin@example.com

[email]
address = bugs@example.com
`

func newTestInstance(t *testing.T) (*Instance, *recordingTransport) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(testConfig), 0o644))

	transport := &recordingTransport{}
	ins, err := Open(dir, Options{Transport: transport})
	require.NoError(t, err)
	t.Cleanup(func() { ins.Close() })
	return ins, transport
}

func testMessage(from, subject, msgid, inReplyTo, body string) *mail.Message {
	m := mail.New()
	m.SetHeader(mail.HeaderFrom, from)
	m.SetHeader(mail.HeaderTo, "bugs@example.com")
	m.SetHeader(mail.HeaderSubject, subject)
	m.SetHeader(mail.HeaderDate, "Mon, 02 Feb 2026 10:00:00 +0100")
	if msgid != "" {
		m.SetHeader(mail.HeaderMessageID, mail.Quote(msgid))
	}
	if inReplyTo != "" {
		m.SetHeader(mail.HeaderInReplyTo, mail.Quote(inReplyTo))
	}
	m.SetBody(body)
	return m
}

func TestImport_NewBug(t *testing.T) {
	ins, transport := newTestInstance(t)
	ctx := context.Background()

	msg := testMessage("alice@example.com", "it crashes", "m1@example.com", "", "It crashes on startup.\n")
	bug, isNew, err := ins.Import(ctx, msg)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "it crashes", bug.Title)
	assert.Equal(t, "alice@example.com", bug.Submitter)
	assert.Equal(t, models.StatusOpen, bug.Status)

	// The raw message is in the store and the index knows the thread.
	assert.True(t, ins.Store.Exists("m1@example.com"))
	id, err := ins.Index.BugForMessage(ctx, "m1@example.com")
	require.NoError(t, err)
	assert.Equal(t, bug.ID, id)

	// The admin is notified, and the submitter gets an acknowledgement.
	require.Len(t, transport.sent, 2)
	assert.Equal(t, []string{"admin@example.com"}, transport.sent[0].to)

	ack := transport.sent[1]
	assert.Equal(t, []string{"alice@example.com"}, ack.to)
	ackMsg, err := mail.Parse(ack.raw)
	require.NoError(t, err)
	assert.True(t, ackMsg.IsControl())
	assert.Contains(t, ackMsg.Subject(), fmt.Sprintf("#%d", bug.ID))
	assert.Equal(t, "m1@example.com", ackMsg.InReplyTo())
}

func TestImport_ReplyByReference(t *testing.T) {
	ins, transport := newTestInstance(t)
	ctx := context.Background()

	first, _, err := ins.Import(ctx, testMessage("alice@example.com", "it crashes", "m1@example.com", "", "report\n"))
	require.NoError(t, err)
	transport.sent = nil

	// The reply has an unrelated subject; the thread reference wins.
	bug, isNew, err := ins.Import(ctx, testMessage("bob@example.com", "totally different", "m2@example.com", "m1@example.com", "me too\n"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, bug.ID)

	// Notification fans out to the admin and earlier participants, but
	// never back to people already on the message.
	require.NotEmpty(t, transport.sent)
	assert.ElementsMatch(t, []string{"admin@example.com", "alice@example.com"}, transport.sent[0].to)
}

func TestImport_ReplyBySubjectSuffix(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	first, _, err := ins.Import(ctx, testMessage("alice@example.com", "it crashes", "m1@example.com", "", "report\n"))
	require.NoError(t, err)

	bug, isNew, err := ins.Import(ctx, testMessage("bob@example.com", "Re: it crashes", "m2@example.com", "", "me too\n"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, bug.ID)
}

func TestImport_UnrelatedSubjectOpensNewBug(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	first, _, err := ins.Import(ctx, testMessage("alice@example.com", "it crashes", "m1@example.com", "", "report\n"))
	require.NoError(t, err)

	second, isNew, err := ins.Import(ctx, testMessage("bob@example.com", "feature request", "m2@example.com", "", "please add\n"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestImport_RejectsControlMessages(t *testing.T) {
	ins, transport := newTestInstance(t)

	msg := testMessage("bugs@example.com", "ack", "m1@example.com", "", "Thank you.\n")
	msg.SetHeader(mail.HeaderControl, "yes")

	_, _, err := ins.Import(context.Background(), msg)
	assert.ErrorIs(t, err, ErrControl)
	assert.Empty(t, transport.sent)
	assert.False(t, ins.Store.Exists("m1@example.com"))
}

func TestImport_DuplicateMessage(t *testing.T) {
	ins, transport := newTestInstance(t)
	ctx := context.Background()

	msg := testMessage("alice@example.com", "it crashes", "m1@example.com", "", "report\n")
	_, _, err := ins.Import(ctx, msg)
	require.NoError(t, err)
	transport.sent = nil

	_, _, err = ins.Import(ctx, testMessage("alice@example.com", "it crashes", "m1@example.com", "", "report\n"))
	assert.ErrorIs(t, err, index.ErrDuplicate)
	assert.Empty(t, transport.sent, "a duplicate must not trigger notifications")
}

func TestImport_StampsMissingMessageID(t *testing.T) {
	ins, _ := newTestInstance(t)

	msg := testMessage("alice@example.com", "no id", "", "", "report\n")
	bug, _, err := ins.Import(context.Background(), msg)
	require.NoError(t, err)

	msgid := msg.MessageID()
	assert.NotEmpty(t, msgid)
	assert.True(t, ins.Store.Exists(msgid))

	stored, err := ins.Index.FirstMessageID(context.Background(), bug.ID)
	require.NoError(t, err)
	assert.Equal(t, msgid, stored)
}

func TestImport_NoSubject(t *testing.T) {
	ins, _ := newTestInstance(t)

	bug, _, err := ins.Import(context.Background(), testMessage("alice@example.com", "", "m1@example.com", "", "report\n"))
	require.NoError(t, err)
	assert.Equal(t, "(no subject)", bug.Title)
}

func TestImport_AppliesDirectives(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	bug, _, err := ins.Import(ctx, testMessage("alice@example.com", "it crashes", "m1@example.com", "",
		"Severity: grave\nTags: +urgent\nFound: 1.0\n\nIt crashes.\n"))
	require.NoError(t, err)

	got, err := ins.Index.GetBug(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityGrave, got.Severity)

	tags, err := ins.Index.Tags(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, tags)

	found, err := ins.Index.Versions(ctx, bug.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0"}, found)
}

func TestImport_CloseThenVersionRecordsFixed(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	bug, _, err := ins.Import(ctx, testMessage("alice@example.com", "it crashes", "m1@example.com", "", "report\n"))
	require.NoError(t, err)

	// "Version:" records against the status the bug has at apply time,
	// after the preceding status change in the same message.
	_, _, err = ins.Import(ctx, testMessage("bob@example.com", "", "m2@example.com", "m1@example.com",
		"Status: closed\nVersion: 2.0\n"))
	require.NoError(t, err)

	got, err := ins.Index.GetBug(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)

	fixed, err := ins.Index.Versions(ctx, bug.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0"}, fixed)
}

func TestImport_StatusHeaderSeedsAndBodyOverrides(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	msg := testMessage("alice@example.com", "seeded", "m1@example.com", "", "report\n")
	msg.SetHeader(mail.HeaderStatus, "closed")
	bug, _, err := ins.Import(ctx, msg)
	require.NoError(t, err)

	got, err := ins.Index.GetBug(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)

	msg = testMessage("alice@example.com", "overridden", "m2@example.com", "", "Status: open\n\nreport\n")
	msg.SetHeader(mail.HeaderStatus, "closed")
	bug, _, err = ins.Import(ctx, msg)
	require.NoError(t, err)

	got, err = ins.Index.GetBug(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestImport_LinkDirectives(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	first, _, err := ins.Import(ctx, testMessage("alice@example.com", "one", "m1@example.com", "", "report\n"))
	require.NoError(t, err)

	second, _, err := ins.Import(ctx, testMessage("bob@example.com", "two", "m2@example.com", "",
		fmt.Sprintf("Blocks: #%d\n\nreport\n", first.ID)))
	require.NoError(t, err)

	links, err := ins.Index.Links(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.Link{A: second.ID, B: first.ID, Type: models.LinkBlocks}, links[0])
}

func TestImport_LinkToUnknownBugIsWarned(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	bug, _, err := ins.Import(ctx, testMessage("alice@example.com", "one", "m1@example.com", "", "Blocks: 999\n\nreport\n"))
	require.NoError(t, err, "an unresolvable link reference must not fail the import")

	links, err := ins.Index.Links(ctx, bug.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestImport_Quiet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(testConfig), 0o644))

	transport := &recordingTransport{}
	ins, err := Open(dir, Options{Transport: transport, Quiet: true})
	require.NoError(t, err)
	defer ins.Close()

	_, _, err = ins.Import(context.Background(), testMessage("alice@example.com", "hush", "m1@example.com", "", "report\n"))
	require.NoError(t, err)
	assert.Empty(t, transport.sent)
}

func TestImport_RespondToNewDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := `[core]
project = Demo
admin = admin@example.com
respond-to-new = false

[email]
address = bugs@example.com
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(cfg), 0o644))

	transport := &recordingTransport{}
	ins, err := Open(dir, Options{Transport: transport})
	require.NoError(t, err)
	defer ins.Close()

	_, _, err = ins.Import(context.Background(), testMessage("alice@example.com", "no ack", "m1@example.com", "", "report\n"))
	require.NoError(t, err)

	// Only the admin notification goes out.
	require.Len(t, transport.sent, 1)
	assert.Equal(t, []string{"admin@example.com"}, transport.sent[0].to)
}

func TestImport_PreIndexHookVeto(t *testing.T) {
	ins, transport := newTestInstance(t)

	require.NoError(t, os.MkdirAll(ins.Hooks.Dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ins.Hooks.Dir, hooks.PreIndex), []byte("#!/bin/sh\nexit 1\n"), 0o755))

	_, _, err := ins.Import(context.Background(), testMessage("alice@example.com", "vetoed", "m1@example.com", "", "report\n"))
	assert.ErrorIs(t, err, hooks.ErrVeto)

	// The message is stored for later inspection but never indexed,
	// and nothing is sent.
	assert.True(t, ins.Store.Exists("m1@example.com"))
	_, err = ins.Index.GetMessage(context.Background(), "m1@example.com")
	assert.ErrorIs(t, err, index.ErrNotFound)
	assert.Empty(t, transport.sent)
}

func TestImport_PostIndexHookSeesBug(t *testing.T) {
	ins, _ := newTestInstance(t)

	out := filepath.Join(ins.BaseDir, "post.txt")
	require.NoError(t, os.MkdirAll(ins.Hooks.Dir, 0o755))
	script := "#!/bin/sh\necho \"$LIGHTBTS_BUG\" > " + out + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(ins.Hooks.Dir, hooks.PostIndex), []byte(script), 0o755))

	bug, _, err := ins.Import(context.Background(), testMessage("alice@example.com", "hooked", "m1@example.com", "", "report\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d\n", bug.ID), string(data))
}

func TestCreateAndReply(t *testing.T) {
	ins, _ := newTestInstance(t)
	ctx := context.Background()

	bug, err := ins.Create(ctx, "dev@example.com", "local report", "Severity: minor\n\ndetails\n")
	require.NoError(t, err)
	assert.Equal(t, "local report", bug.Title)

	got, err := ins.Index.GetBug(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMinor, got.Severity)

	replied, err := ins.Reply(ctx, "dev@example.com", bug.ID, "Status: closed\n\ndone\n")
	require.NoError(t, err)
	assert.Equal(t, bug.ID, replied.ID)

	got, err = ins.Index.GetBug(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)

	messages, err := ins.Index.Messages(ctx, bug.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	_, err = ins.Reply(ctx, "dev@example.com", 999, "text\n")
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestReindex(t *testing.T) {
	ins, transport := newTestInstance(t)
	ctx := context.Background()

	bug, _, err := ins.Import(ctx, testMessage("alice@example.com", "it crashes", "m1@example.com", "", "Tags: +urgent\n\nreport\n"))
	require.NoError(t, err)
	_, _, err = ins.Import(ctx, testMessage("bob@example.com", "", "m2@example.com", "m1@example.com", "me too\n"))
	require.NoError(t, err)

	delivered := len(transport.sent)
	n, err := ins.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, transport.sent, delivered, "reindex must not resend notifications")

	// Replaying changes nothing: same bug, same tags, same thread.
	tags, err := ins.Index.Tags(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, tags)

	messages, err := ins.Index.Messages(ctx, bug.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestUpdateIndex_RecoversStoredMessage(t *testing.T) {
	ins, transport := newTestInstance(t)
	ctx := context.Background()

	// A message that made it into the store but never into the index,
	// as after a crash between the store write and the commit.
	msg := testMessage("alice@example.com", "lost report", "lost@example.com", "", "Severity: grave\n\nreport\n")
	_, err := ins.Store.Store("lost@example.com", msg.Bytes())
	require.NoError(t, err)

	bug, err := ins.UpdateIndex(ctx, "lost@example.com")
	require.NoError(t, err)
	assert.Equal(t, "lost report", bug.Title)
	assert.Equal(t, models.SeverityGrave, bug.Severity)

	// Recovery of a single message still notifies the admin.
	require.Len(t, transport.sent, 1)
	assert.Equal(t, []string{"admin@example.com"}, transport.sent[0].to)
}

func TestUpdateIndex_MissingMessage(t *testing.T) {
	ins, _ := newTestInstance(t)

	_, err := ins.UpdateIndex(context.Background(), "ghost@example.com")
	assert.Error(t, err)
}
