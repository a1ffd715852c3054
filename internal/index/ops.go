package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gsliepen/lightbts/internal/models"
)

// ops carries every index operation. Both Index and Tx embed it, so
// the same operation set works standalone and inside an import
// transaction.
type ops struct {
	q DBTX
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func scanBug(row interface{ Scan(...any) error }) (*models.Bug, error) {
	b := &models.Bug{}
	var title, owner, submitter, milestone sql.NullString
	var date, deadline sql.NullInt64
	var progress sql.NullInt64
	err := row.Scan(&b.ID, &b.Status, &b.Severity, &title, &owner, &submitter, &date, &deadline, &progress, &milestone)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bug: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan bug: %w", err)
	}
	b.Title = title.String
	b.Owner = owner.String
	b.Submitter = submitter.String
	b.Milestone = milestone.String
	if date.Valid {
		b.CreatedAt = time.Unix(date.Int64, 0)
	}
	if deadline.Valid {
		t := time.Unix(deadline.Int64, 0)
		b.Deadline = &t
	}
	b.Progress = int(progress.Int64)
	return b, nil
}

const bugColumns = "id, status, severity, title, owner, submitter, date, deadline, progress, milestone"

// CreateBug inserts a new bug with default status and severity and
// returns it. The id is assigned by the index and never reused.
func (o ops) CreateBug(ctx context.Context, title, submitter string, date time.Time) (*models.Bug, error) {
	if date.IsZero() {
		date = time.Now()
	}
	res, err := o.q.ExecContext(ctx,
		"INSERT INTO bugs (title, submitter, date) VALUES (?, ?, ?)",
		title, submitter, date.Unix())
	if err != nil {
		return nil, fmt.Errorf("create bug: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("bug id: %w", err)
	}
	return &models.Bug{
		ID:        id,
		Title:     title,
		Status:    models.StatusOpen,
		Severity:  models.SeverityNormal,
		Submitter: submitter,
		CreatedAt: time.Unix(date.Unix(), 0),
	}, nil
}

// GetBug retrieves a bug by id.
func (o ops) GetBug(ctx context.Context, id int64) (*models.Bug, error) {
	row := o.q.QueryRowContext(ctx, "SELECT "+bugColumns+" FROM bugs WHERE id = ?", id)
	return scanBug(row)
}

// GetBugByTitle retrieves the bug whose title matches exactly.
func (o ops) GetBugByTitle(ctx context.Context, title string) (*models.Bug, error) {
	row := o.q.QueryRowContext(ctx, "SELECT "+bugColumns+" FROM bugs WHERE title = ?", title)
	return scanBug(row)
}

// FindBugBySubjectSuffix finds a bug whose title is a suffix match for
// subject, so "Re: X" matches a stored title "X". This is the
// permissive thread-correlation fallback; the reply-reference lookup
// always takes precedence.
func (o ops) FindBugBySubjectSuffix(ctx context.Context, subject string) (int64, error) {
	var id int64
	err := o.q.QueryRowContext(ctx,
		"SELECT id FROM bugs WHERE ? LIKE '%' || title ORDER BY id LIMIT 1",
		subject).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("bug: %w", ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("match subject: %w", err)
	}
	return id, nil
}

// Filter selects bugs for ListBugs. Zero values mean "any".
type Filter struct {
	Status     *models.Status
	Severities []models.Severity
	Tags       []string
}

// ListBugs lists bugs matching the filter, oldest first.
func (o ops) ListBugs(ctx context.Context, filter Filter) ([]*models.Bug, error) {
	query := "SELECT " + bugColumns + " FROM bugs WHERE 1=1"
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query += " AND severity IN (" + strings.Join(placeholders, ", ") + ")"
	}
	for _, tag := range filter.Tags {
		query += " AND EXISTS (SELECT 1 FROM tags WHERE bug = id AND tag = ?)"
		args = append(args, tag)
	}
	query += " ORDER BY id"

	return o.queryBugs(ctx, query, args...)
}

// SearchBugs finds bugs whose title contains the term.
func (o ops) SearchBugs(ctx context.Context, term string) ([]*models.Bug, error) {
	return o.queryBugs(ctx,
		"SELECT "+bugColumns+" FROM bugs WHERE title LIKE ? ORDER BY id",
		"%"+term+"%")
}

func (o ops) queryBugs(ctx context.Context, query string, args ...any) ([]*models.Bug, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bugs []*models.Bug
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, err
		}
		bugs = append(bugs, b)
	}
	return bugs, rows.Err()
}

func (o ops) updateBug(ctx context.Context, id int64, column string, value any) error {
	res, err := o.q.ExecContext(ctx, "UPDATE bugs SET "+column+" = ? WHERE id = ?", value, id)
	if err != nil {
		return fmt.Errorf("update bug %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bug %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetStatus updates a bug's status.
func (o ops) SetStatus(ctx context.Context, id int64, status models.Status) error {
	return o.updateBug(ctx, id, "status", status)
}

// SetSeverity updates a bug's severity.
func (o ops) SetSeverity(ctx context.Context, id int64, severity models.Severity) error {
	return o.updateBug(ctx, id, "severity", severity)
}

// SetTitle updates a bug's title.
func (o ops) SetTitle(ctx context.Context, id int64, title string) error {
	return o.updateBug(ctx, id, "title", title)
}

// SetOwner updates a bug's owner. An empty owner clears it.
func (o ops) SetOwner(ctx context.Context, id int64, owner string) error {
	return o.updateBug(ctx, id, "owner", owner)
}

// SetMilestone updates a bug's milestone.
func (o ops) SetMilestone(ctx context.Context, id int64, milestone string) error {
	return o.updateBug(ctx, id, "milestone", milestone)
}

// SetProgress updates a bug's progress percentage.
func (o ops) SetProgress(ctx context.Context, id int64, progress int) error {
	return o.updateBug(ctx, id, "progress", progress)
}

// SetDeadline updates a bug's deadline. A nil deadline clears it.
func (o ops) SetDeadline(ctx context.Context, id int64, deadline *time.Time) error {
	return o.updateBug(ctx, id, "deadline", nullTime(deadline))
}

// --- Messages ---

// InsertMessage inserts a message row in the unassigned state. The
// first writer wins: an id collision returns ErrDuplicate and the
// existing row is untouched. The unassigned state must be resolved by
// AssignMessage within the same import transaction.
func (o ops) InsertMessage(ctx context.Context, msgid string, date time.Time) error {
	if date.IsZero() {
		date = time.Now()
	}
	res, err := o.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO messages (msgid, bug, date) VALUES (?, NULL, ?)",
		msgid, date.Unix())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, msgid)
	}
	return nil
}

// AssignMessage resolves a message's owning bug and records the sender
// as a recipient of that bug.
func (o ops) AssignMessage(ctx context.Context, msgid string, bug int64, sender string) error {
	if _, err := o.q.ExecContext(ctx, "UPDATE messages SET bug = ? WHERE msgid = ?", bug, msgid); err != nil {
		return fmt.Errorf("assign message: %w", err)
	}
	if sender != "" {
		if err := o.AddRecipient(ctx, bug, sender); err != nil {
			return err
		}
	}
	return nil
}

// GetMessage retrieves a message row by its unquoted id.
func (o ops) GetMessage(ctx context.Context, msgid string) (*models.Message, error) {
	m := &models.Message{}
	var bug, date sql.NullInt64
	var spam int
	err := o.q.QueryRowContext(ctx,
		"SELECT msgid, bug, spam, date FROM messages WHERE msgid = ?", msgid).
		Scan(&m.ID, &bug, &spam, &date)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %s: %w", msgid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	m.Bug = bug.Int64
	m.Spam = spam != 0
	if date.Valid {
		m.Date = time.Unix(date.Int64, 0)
	}
	return m, nil
}

// BugForMessage returns the bug the given message id belongs to, or
// ErrNotFound when the id is unknown or still unassigned.
func (o ops) BugForMessage(ctx context.Context, msgid string) (int64, error) {
	var bug sql.NullInt64
	err := o.q.QueryRowContext(ctx, "SELECT bug FROM messages WHERE msgid = ?", msgid).Scan(&bug)
	if err == sql.ErrNoRows || (err == nil && bug.Int64 == 0) {
		return 0, fmt.Errorf("message %s: %w", msgid, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("look up message: %w", err)
	}
	return bug.Int64, nil
}

// Messages lists the messages of a bug, oldest first.
func (o ops) Messages(ctx context.Context, bug int64) ([]*models.Message, error) {
	rows, err := o.q.QueryContext(ctx,
		"SELECT msgid, bug, spam, date FROM messages WHERE bug = ? ORDER BY date, msgid", bug)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var bug, date sql.NullInt64
		var spam int
		if err := rows.Scan(&m.ID, &bug, &spam, &date); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Bug = bug.Int64
		m.Spam = spam != 0
		if date.Valid {
			m.Date = time.Unix(date.Int64, 0)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// FirstMessageID returns the id of the oldest message of a bug, used
// as the reply-reference for engine-built action messages.
func (o ops) FirstMessageID(ctx context.Context, bug int64) (string, error) {
	var msgid string
	err := o.q.QueryRowContext(ctx,
		"SELECT msgid FROM messages WHERE bug = ? ORDER BY date, msgid LIMIT 1", bug).Scan(&msgid)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("bug %d has no messages: %w", bug, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("first message: %w", err)
	}
	return msgid, nil
}

// AllMessageIDs returns every indexed message id, oldest first, so a
// reindex replays messages in arrival order.
func (o ops) AllMessageIDs(ctx context.Context) ([]string, error) {
	return o.queryStrings(ctx, "SELECT msgid FROM messages ORDER BY date, msgid")
}

// SetSpam flags or unflags a message as spam.
func (o ops) SetSpam(ctx context.Context, msgid string, spam bool) error {
	res, err := o.q.ExecContext(ctx, "UPDATE messages SET spam = ? WHERE msgid = ?", spam, msgid)
	if err != nil {
		return fmt.Errorf("set spam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", msgid, ErrNotFound)
	}
	return nil
}

// --- Recipients ---

// AddRecipient records an address as a participant of a bug's thread.
// Idempotent; recipients are never pruned.
func (o ops) AddRecipient(ctx context.Context, bug int64, address string) error {
	_, err := o.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO recipients (bug, address) VALUES (?, ?)", bug, address)
	if err != nil {
		return fmt.Errorf("add recipient: %w", err)
	}
	return nil
}

// Recipients lists every address that has participated in a bug's
// thread.
func (o ops) Recipients(ctx context.Context, bug int64) ([]string, error) {
	return o.queryStrings(ctx, "SELECT address FROM recipients WHERE bug = ? ORDER BY address", bug)
}

// --- Tags ---

// AddTag adds a tag to a bug. Set semantics.
func (o ops) AddTag(ctx context.Context, bug int64, tag string) error {
	_, err := o.q.ExecContext(ctx, "INSERT OR IGNORE INTO tags (bug, tag) VALUES (?, ?)", bug, tag)
	if err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}

// DelTag removes a tag from a bug.
func (o ops) DelTag(ctx context.Context, bug int64, tag string) error {
	_, err := o.q.ExecContext(ctx, "DELETE FROM tags WHERE bug = ? AND tag = ?", bug, tag)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ClearTags removes all tags from a bug.
func (o ops) ClearTags(ctx context.Context, bug int64) error {
	_, err := o.q.ExecContext(ctx, "DELETE FROM tags WHERE bug = ?", bug)
	if err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	return nil
}

// Tags lists a bug's tags.
func (o ops) Tags(ctx context.Context, bug int64) ([]string, error) {
	return o.queryStrings(ctx, "SELECT tag FROM tags WHERE bug = ? ORDER BY tag", bug)
}

// --- Versions ---

// SetVersionStatus records that a bug was found in (found=true) or
// fixed in (found=false) a version. A later write replaces the status
// for that version.
func (o ops) SetVersionStatus(ctx context.Context, bug int64, version string, found bool) error {
	status := 0
	if found {
		status = 1
	}
	_, err := o.q.ExecContext(ctx,
		"INSERT OR REPLACE INTO versions (bug, version, status) VALUES (?, ?, ?)",
		bug, version, status)
	if err != nil {
		return fmt.Errorf("set version status: %w", err)
	}
	return nil
}

// DelVersionStatus removes a found/fixed record for a version, but
// only if it currently carries the given status.
func (o ops) DelVersionStatus(ctx context.Context, bug int64, version string, found bool) error {
	status := 0
	if found {
		status = 1
	}
	_, err := o.q.ExecContext(ctx,
		"DELETE FROM versions WHERE bug = ? AND version = ? AND status = ?",
		bug, version, status)
	if err != nil {
		return fmt.Errorf("delete version status: %w", err)
	}
	return nil
}

// Versions lists the versions a bug carries the given status for.
func (o ops) Versions(ctx context.Context, bug int64, found bool) ([]string, error) {
	status := 0
	if found {
		status = 1
	}
	return o.queryStrings(ctx,
		"SELECT version FROM versions WHERE bug = ? AND status = ? ORDER BY version", bug, status)
}

// --- Links ---

// AddLink records a directed, typed relation from a to b.
func (o ops) AddLink(ctx context.Context, a, b int64, typ models.LinkType) error {
	_, err := o.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO links (a, b, type) VALUES (?, ?, ?)", a, b, typ)
	if err != nil {
		return fmt.Errorf("add link: %w", err)
	}
	return nil
}

// DelLink removes a link.
func (o ops) DelLink(ctx context.Context, a, b int64, typ models.LinkType) error {
	_, err := o.q.ExecContext(ctx,
		"DELETE FROM links WHERE a = ? AND b = ? AND type = ?", a, b, typ)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// Links lists the outgoing links of a bug.
func (o ops) Links(ctx context.Context, bug int64) ([]models.Link, error) {
	return o.queryLinks(ctx, "SELECT a, b, type FROM links WHERE a = ? ORDER BY b, type", bug)
}

// ReverseLinks lists the incoming links of a bug, for display with the
// reverse readings.
func (o ops) ReverseLinks(ctx context.Context, bug int64) ([]models.Link, error) {
	return o.queryLinks(ctx, "SELECT a, b, type FROM links WHERE b = ? ORDER BY a, type", bug)
}

func (o ops) queryLinks(ctx context.Context, query string, args ...any) ([]models.Link, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.A, &l.B, &l.Type); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (o ops) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
