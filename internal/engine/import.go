package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	netmail "net/mail"

	"github.com/gsliepen/lightbts/internal/hooks"
	"github.com/gsliepen/lightbts/internal/index"
	"github.com/gsliepen/lightbts/internal/mail"
	"github.com/gsliepen/lightbts/internal/mailer"
	"github.com/gsliepen/lightbts/internal/metadata"
	"github.com/gsliepen/lightbts/internal/models"
)

// ErrControl marks an inbound message carrying the engine's own
// control header. Importing it would loop engine-generated mail back
// into the tracker.
var ErrControl = errors.New("message generated by the tracker itself")

// ErrVetoed wraps a pre-index hook refusal.
var ErrVetoed = hooks.ErrVeto

// Import runs msg through the indexing pipeline: stamp, store,
// pre-index hook, correlate, apply metadata, notify, post-index hook.
// It returns the bug the message ended up in and whether that bug was
// created by this message.
//
// The index writes happen in a single immediate transaction that is
// committed before any mail goes out, so a delivery failure never
// rolls back the correlation. When notification fails the returned bug
// is still valid alongside the error.
func (ins *Instance) Import(ctx context.Context, msg *mail.Message) (*models.Bug, bool, error) {
	if msg.IsControl() {
		return nil, false, ErrControl
	}

	msgid := msg.MessageID()
	if msgid == "" {
		msgid = mail.NewMessageID(ins.Config.Project)
		msg.SetHeader(mail.HeaderMessageID, msgid)
	}
	if msg.Header(mail.HeaderDate) == "" {
		msg.SetHeader(mail.HeaderDate, time.Now().Format(time.RFC1123Z))
	}
	msg.AddHeader(mail.HeaderReceived, fmt.Sprintf("by LightBTS; %s", time.Now().Format(time.RFC1123Z)))

	if _, err := ins.Store.Store(msgid, msg.Bytes()); err != nil {
		return nil, false, err
	}

	if err := ins.Hooks.Run(ctx, hooks.PreIndex, hooks.Request{
		MessagePath: ins.Store.Path(msgid),
	}); err != nil {
		return nil, false, err
	}

	tx, err := ins.Index.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if err := tx.InsertMessage(ctx, msgid, msg.Date()); err != nil {
		return nil, false, err
	}

	bug, isNew, err := ins.correlate(ctx, tx, msg)
	if err != nil {
		return nil, false, err
	}

	if err := tx.AssignMessage(ctx, msgid, bug.ID, msg.From()); err != nil {
		return nil, false, err
	}

	batch := metadata.Parse(msg.Body(), ins.seedIntents(msg))
	for _, w := range batch.Warnings {
		ins.Log.Warning("%s: %s", msgid, w)
	}
	if err := ins.applyBatch(ctx, tx, bug, batch); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	if err := ins.notify(ctx, bug, msg); err != nil {
		return bug, isNew, fmt.Errorf("notify: %w", err)
	}

	if err := ins.acknowledge(ctx, bug, isNew, msg); err != nil {
		ins.Log.Warning("acknowledgement for bug #%d not sent: %v", bug.ID, err)
	}

	if err := ins.Hooks.Run(ctx, hooks.PostIndex, hooks.Request{
		MessagePath: ins.Store.Path(msgid),
		BugID:       bug.ID,
	}); err != nil {
		ins.Log.Warning("post-index hook: %v", err)
	}

	return bug, isNew, nil
}

// correlate finds the bug a message belongs to: by thread parent
// first, then by subject suffix, and failing both a new bug is opened
// with the message's subject, sender and date.
func (ins *Instance) correlate(ctx context.Context, tx *index.Tx, msg *mail.Message) (*models.Bug, bool, error) {
	if parent := msg.InReplyTo(); parent != "" {
		id, err := tx.BugForMessage(ctx, parent)
		switch {
		case err == nil:
			bug, err := tx.GetBug(ctx, id)
			return bug, false, err
		case !errors.Is(err, index.ErrNotFound):
			return nil, false, err
		}
	}

	if subject := msg.Subject(); subject != "" {
		id, err := tx.FindBugBySubjectSuffix(ctx, subject)
		switch {
		case err == nil:
			bug, err := tx.GetBug(ctx, id)
			return bug, false, err
		case !errors.Is(err, index.ErrNotFound):
			return nil, false, err
		}
	}

	title := msg.Subject()
	if title == "" {
		title = "(no subject)"
	}
	bug, err := tx.CreateBug(ctx, title, msg.From(), msg.Date())
	if err != nil {
		return nil, false, err
	}
	return bug, true, nil
}

// seedIntents turns control headers into intents installed before the
// body is parsed, so body directives override them.
func (ins *Instance) seedIntents(msg *mail.Message) []metadata.Intent {
	value := msg.Header(mail.HeaderStatus)
	if value == "" {
		return nil
	}
	status, err := models.ParseStatus(strings.TrimSpace(value))
	if err != nil {
		ins.Log.Warning("ignoring invalid %s header %q", mail.HeaderStatus, value)
		return nil
	}
	return []metadata.Intent{{Kind: metadata.SetStatus, Status: status}}
}

// applyBatch writes a batch of intents to a bug inside the import
// transaction. bug.Status is tracked through the batch so a version
// directive after a status change records against the new status.
func (ins *Instance) applyBatch(ctx context.Context, tx *index.Tx, bug *models.Bug, batch metadata.Batch) error {
	for _, in := range batch.Intents {
		var err error
		switch in.Kind {
		case metadata.SetStatus:
			err = tx.SetStatus(ctx, bug.ID, in.Status)
			bug.Status = in.Status
		case metadata.SetSeverity:
			err = tx.SetSeverity(ctx, bug.ID, in.Severity)
			bug.Severity = in.Severity
		case metadata.AddTag:
			err = tx.AddTag(ctx, bug.ID, in.Text)
		case metadata.RemoveTag:
			err = tx.DelTag(ctx, bug.ID, in.Text)
		case metadata.ClearTags:
			err = tx.ClearTags(ctx, bug.ID)
		case metadata.VersionFound:
			err = tx.SetVersionStatus(ctx, bug.ID, in.Text, true)
		case metadata.VersionNotFound:
			err = tx.DelVersionStatus(ctx, bug.ID, in.Text, true)
		case metadata.VersionFixed:
			err = tx.SetVersionStatus(ctx, bug.ID, in.Text, false)
		case metadata.VersionNotFixed:
			err = tx.DelVersionStatus(ctx, bug.ID, in.Text, false)
		case metadata.VersionCurrent:
			err = tx.SetVersionStatus(ctx, bug.ID, in.Text, bug.Status == models.StatusOpen)
		case metadata.SetOwner:
			err = tx.SetOwner(ctx, bug.ID, in.Text)
		case metadata.ClearOwner:
			err = tx.SetOwner(ctx, bug.ID, "")
		case metadata.SetProgress:
			err = tx.SetProgress(ctx, bug.ID, in.Progress)
		case metadata.SetMilestone:
			err = tx.SetMilestone(ctx, bug.ID, in.Text)
		case metadata.SetDeadline:
			if in.Deadline.IsZero() {
				err = tx.SetDeadline(ctx, bug.ID, nil)
			} else {
				deadline := in.Deadline
				err = tx.SetDeadline(ctx, bug.ID, &deadline)
			}
		case metadata.SetTitle:
			err = tx.SetTitle(ctx, bug.ID, in.Text)
		case metadata.AddLink, metadata.RemoveLink:
			err = ins.applyLink(ctx, tx, bug.ID, in)
		}
		if err != nil {
			return fmt.Errorf("apply %s to bug #%d: %w", kindLabel(in.Kind), bug.ID, err)
		}
	}
	return nil
}

func (ins *Instance) applyLink(ctx context.Context, tx *index.Tx, bug int64, in metadata.Intent) error {
	other, err := strconv.ParseInt(in.Text, 10, 64)
	if err != nil {
		ins.Log.Warning("ignoring link directive with bad bug reference %q", in.Text)
		return nil
	}
	if _, err := tx.GetBug(ctx, other); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			ins.Log.Warning("ignoring link to unknown bug #%d", other)
			return nil
		}
		return err
	}
	if in.Kind == metadata.RemoveLink {
		return tx.DelLink(ctx, bug, other, in.LinkType)
	}
	return tx.AddLink(ctx, bug, other, in.LinkType)
}

func kindLabel(k metadata.Kind) string {
	switch k {
	case metadata.SetStatus:
		return "status"
	case metadata.SetSeverity:
		return "severity"
	case metadata.AddTag, metadata.RemoveTag, metadata.ClearTags:
		return "tags"
	case metadata.VersionFound, metadata.VersionNotFound, metadata.VersionFixed, metadata.VersionNotFixed, metadata.VersionCurrent:
		return "version"
	case metadata.SetOwner, metadata.ClearOwner:
		return "owner"
	case metadata.SetProgress:
		return "progress"
	case metadata.SetMilestone:
		return "milestone"
	case metadata.SetDeadline:
		return "deadline"
	case metadata.SetTitle:
		return "title"
	case metadata.AddLink, metadata.RemoveLink:
		return "link"
	}
	return "directive"
}

// notify fans the stored message out to the bug's subscribers: the
// admin plus every recorded recipient, minus whoever already saw the
// message as sender or addressee. Quiet instances send nothing.
func (ins *Instance) notify(ctx context.Context, bug *models.Bug, msg *mail.Message) error {
	if ins.quiet {
		return nil
	}

	recipients, err := ins.Index.Recipients(ctx, bug.ID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, p := range msg.Participants() {
		seen[strings.ToLower(p)] = true
	}

	var to []string
	add := func(addr string) {
		bare := strings.ToLower(bareAddress(addr))
		if bare == "" || seen[bare] {
			return
		}
		seen[bare] = true
		to = append(to, addr)
	}
	if ins.Config.Admin != "" {
		add(ins.Config.Admin)
	}
	for _, r := range recipients {
		add(r)
	}
	if len(to) == 0 {
		return nil
	}

	ins.Log.VerboseLog("notifying %s about bug #%d", strings.Join(to, ", "), bug.ID)
	return ins.Transport.Send(ctx, ins.Config.EmailAddress, to, msg.Bytes())
}

// acknowledge sends the automatic reply confirming receipt, when
// configured for this kind of message.
func (ins *Instance) acknowledge(ctx context.Context, bug *models.Bug, isNew bool, msg *mail.Message) error {
	if ins.quiet {
		return nil
	}
	if isNew && !ins.Config.RespondToNew {
		return nil
	}
	if !isNew && !ins.Config.RespondToReply {
		return nil
	}
	sender := msg.From()
	if sender == "" {
		return nil
	}
	if strings.EqualFold(bareAddress(sender), bareAddress(ins.Config.EmailAddress)) {
		return nil
	}

	var body string
	if isNew {
		body = fmt.Sprintf("Thank you for your report. It has been filed as bug #%d.\n", bug.ID)
	} else {
		body = fmt.Sprintf("Thank you for your message. It has been added to bug #%d.\n", bug.ID)
	}
	reply := mailer.BuildControl(
		ins.Config.Project,
		ins.Config.EmailAddress,
		sender,
		fmt.Sprintf("Re: [%s#%d] %s", ins.Config.Project, bug.ID, bug.Title),
		msg.MessageID(),
		body,
	)
	return ins.Transport.Send(ctx, ins.Config.EmailAddress, []string{sender}, reply.Bytes())
}

// UpdateIndex re-runs correlation, metadata application and subscriber
// notification for a message already present in the store, without
// hooks. It backs recovery of a single message whose index row was
// lost; the bulk reindex path suppresses the notification.
func (ins *Instance) UpdateIndex(ctx context.Context, msgid string) (*models.Bug, error) {
	return ins.updateIndex(ctx, msgid, true)
}

func (ins *Instance) updateIndex(ctx context.Context, msgid string, renotify bool) (*models.Bug, error) {
	raw, err := ins.Store.Load(msgid)
	if err != nil {
		return nil, err
	}
	msg, err := mail.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse stored message %s: %w", msgid, err)
	}

	tx, err := ins.Index.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.InsertMessage(ctx, msgid, msg.Date()); err != nil && !errors.Is(err, index.ErrDuplicate) {
		return nil, err
	}

	var bug *models.Bug
	id, err := tx.BugForMessage(ctx, msgid)
	switch {
	case err == nil:
		bug, err = tx.GetBug(ctx, id)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, index.ErrNotFound):
		bug, _, err = ins.correlate(ctx, tx, msg)
		if err != nil {
			return nil, err
		}
		if err := tx.AssignMessage(ctx, msgid, bug.ID, msg.From()); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	batch := metadata.Parse(msg.Body(), ins.seedIntents(msg))
	for _, w := range batch.Warnings {
		ins.Log.Warning("%s: %s", msgid, w)
	}
	if err := ins.applyBatch(ctx, tx, bug, batch); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if renotify {
		if err := ins.notify(ctx, bug, msg); err != nil {
			return bug, fmt.Errorf("notify: %w", err)
		}
	}
	return bug, nil
}

func bareAddress(addr string) string {
	if parsed, err := netmail.ParseAddress(addr); err == nil {
		return parsed.Address
	}
	return strings.TrimSpace(addr)
}
