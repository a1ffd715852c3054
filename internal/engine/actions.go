package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gsliepen/lightbts/internal/mail"
	"github.com/gsliepen/lightbts/internal/models"
)

// LocalAddress is the sender identity used for actions performed on
// the command line rather than received by mail.
func LocalAddress() string {
	return defaultEmailAddress()
}

// Create files a new bug by building a report message from the given
// sender, title and text and running it through the import pipeline.
func (ins *Instance) Create(ctx context.Context, from, title, text string) (*models.Bug, error) {
	msg := mail.New()
	msg.SetHeader(mail.HeaderFrom, from)
	msg.SetHeader(mail.HeaderTo, ins.Config.EmailAddress)
	msg.SetHeader(mail.HeaderSubject, title)
	msg.SetHeader(mail.HeaderDate, time.Now().Format(time.RFC1123Z))
	msg.SetHeader(mail.HeaderMessageID, mail.NewMessageID(ins.Config.Project))
	msg.SetBody(text)

	bug, _, err := ins.Import(ctx, msg)
	return bug, err
}

// Reply adds a message to an existing bug. The message is threaded
// onto the bug's first message so correlation lands it there.
func (ins *Instance) Reply(ctx context.Context, from string, bugID int64, text string) (*models.Bug, error) {
	bug, err := ins.Index.GetBug(ctx, bugID)
	if err != nil {
		return nil, err
	}
	parent, err := ins.Index.FirstMessageID(ctx, bugID)
	if err != nil {
		return nil, err
	}

	msg := mail.New()
	msg.SetHeader(mail.HeaderFrom, from)
	msg.SetHeader(mail.HeaderTo, ins.Config.EmailAddress)
	msg.SetHeader(mail.HeaderSubject, "Re: "+bug.Title)
	msg.SetHeader(mail.HeaderInReplyTo, parent)
	msg.SetHeader(mail.HeaderDate, time.Now().Format(time.RFC1123Z))
	msg.SetHeader(mail.HeaderMessageID, mail.NewMessageID(ins.Config.Project))
	msg.SetBody(text)

	got, isNew, err := ins.Import(ctx, msg)
	if err != nil {
		return got, err
	}
	if isNew || got.ID != bugID {
		return got, fmt.Errorf("reply to bug #%d was filed as bug #%d", bugID, got.ID)
	}
	return got, nil
}

// Reindex walks every message in the index and re-runs correlation and
// metadata application from the stored bodies. It returns the number
// of messages processed. Replayed messages were already delivered
// once, so no notifications go out.
func (ins *Instance) Reindex(ctx context.Context) (int, error) {
	msgids, err := ins.Index.AllMessageIDs(ctx)
	if err != nil {
		return 0, err
	}
	for i, msgid := range msgids {
		if _, err := ins.updateIndex(ctx, msgid, false); err != nil {
			return i, fmt.Errorf("reindex %s: %w", msgid, err)
		}
	}
	return len(msgids), nil
}
