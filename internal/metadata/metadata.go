// Package metadata reads the leading `Key: value` control lines of a
// message body and turns them into a batch of typed intents. Parsing
// is a pure pass; applying the batch to a bug is the engine's job, so
// parsing correctness and mutation correctness are testable apart.
package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gsliepen/lightbts/internal/models"
)

// Kind discriminates the intent variants.
type Kind int

const (
	SetStatus Kind = iota
	SetSeverity
	AddTag
	RemoveTag
	ClearTags
	VersionFound
	VersionNotFound
	VersionFixed
	VersionNotFixed
	// VersionCurrent marks a version at the bug's status at apply
	// time: found when the bug is open, fixed when closed.
	VersionCurrent
	SetOwner
	ClearOwner
	SetProgress
	SetMilestone
	SetDeadline
	SetTitle
	AddLink
	RemoveLink
)

// Intent is one parsed directive effect. Which fields are meaningful
// depends on Kind.
type Intent struct {
	Kind     Kind
	Status   models.Status
	Severity models.Severity
	Text     string // tag, version, owner, milestone, title, or bug reference
	Progress int
	Deadline time.Time
	LinkType models.LinkType
}

// Batch is the ordered set of intents of one message, applied to the
// bug only after the entire body has been scanned.
type Batch struct {
	Intents  []Intent
	Warnings []string
}

func (b *Batch) warnf(format string, a ...any) {
	b.Warnings = append(b.Warnings, fmt.Sprintf(format, a...))
}

// singleValued reports whether at most one intent of this kind may
// survive in a batch. A later directive for the same field overwrites
// the earlier one in memory before anything is written.
func singleValued(k Kind) bool {
	switch k {
	case SetStatus, SetSeverity, SetOwner, ClearOwner, SetProgress, SetMilestone, SetDeadline, SetTitle:
		return true
	}
	return false
}

func (b *Batch) add(in Intent) {
	if singleValued(in.Kind) {
		for i := 0; i < len(b.Intents); i++ {
			k := b.Intents[i].Kind
			if k == in.Kind || (ownerKind(k) && ownerKind(in.Kind)) {
				b.warnf("duplicate directive for %s, last one wins", kindName(in.Kind))
				b.Intents = append(b.Intents[:i], b.Intents[i+1:]...)
				i--
			}
		}
	}
	b.Intents = append(b.Intents, in)
}

func ownerKind(k Kind) bool { return k == SetOwner || k == ClearOwner }

func kindName(k Kind) string {
	switch k {
	case SetStatus:
		return "status"
	case SetSeverity:
		return "severity"
	case SetOwner, ClearOwner:
		return "owner"
	case SetProgress:
		return "progress"
	case SetMilestone:
		return "milestone"
	case SetDeadline:
		return "deadline"
	case SetTitle:
		return "title"
	}
	return "directive"
}

// Parse scans the contiguous `Key: value` preamble of body. Seed
// intents (from control headers) are installed first, so a body
// directive for the same field overrides the seed. Invalid values are
// recorded as warnings and skipped; they never abort the batch.
func Parse(body string, seed []Intent) Batch {
	var b Batch
	for _, in := range seed {
		b.add(in)
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			break
		}
		if !parseDirective(&b, strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value)) {
			break
		}
	}
	return b
}

// parseDirective handles one directive. It returns false when the key
// is not part of the control vocabulary, which ends the preamble.
func parseDirective(b *Batch, key, value string) bool {
	switch key {
	case "status":
		status, err := models.ParseStatus(value)
		if err != nil {
			b.warnf("ignoring invalid status %q", value)
			return true
		}
		b.add(Intent{Kind: SetStatus, Status: status})

	case "severity":
		severity, err := models.ParseSeverity(value)
		if err != nil {
			b.warnf("ignoring invalid severity %q", value)
			return true
		}
		b.add(Intent{Kind: SetSeverity, Severity: severity})

	case "tags", "tag":
		parseTags(b, value)

	case "version":
		for _, v := range strings.Fields(value) {
			b.add(Intent{Kind: VersionCurrent, Text: v})
		}

	case "found":
		for _, v := range strings.Fields(value) {
			b.add(Intent{Kind: VersionFound, Text: v})
		}
	case "notfound":
		for _, v := range strings.Fields(value) {
			b.add(Intent{Kind: VersionNotFound, Text: v})
		}
	case "fixed":
		for _, v := range strings.Fields(value) {
			b.add(Intent{Kind: VersionFixed, Text: v})
		}
	case "notfixed":
		for _, v := range strings.Fields(value) {
			b.add(Intent{Kind: VersionNotFixed, Text: v})
		}

	case "owner":
		if value == "-" {
			b.add(Intent{Kind: ClearOwner})
		} else if value != "" {
			b.add(Intent{Kind: SetOwner, Text: value})
		}

	case "progress":
		progress, err := parseProgress(value)
		if err != nil {
			b.warnf("ignoring invalid progress %q", value)
			return true
		}
		b.add(Intent{Kind: SetProgress, Progress: progress})

	case "milestone":
		b.add(Intent{Kind: SetMilestone, Text: value})

	case "deadline":
		if value == "-" {
			b.add(Intent{Kind: SetDeadline})
			return true
		}
		deadline, err := ParseDeadline(value)
		if err != nil {
			b.warnf("ignoring invalid deadline %q", value)
			return true
		}
		b.add(Intent{Kind: SetDeadline, Deadline: deadline})

	case "title", "topic":
		b.add(Intent{Kind: SetTitle, Text: value})

	default:
		typ, remove, ok := parseLinkKey(key)
		if !ok {
			return false
		}
		kind := AddLink
		if remove {
			kind = RemoveLink
		}
		for _, ref := range strings.Fields(value) {
			b.add(Intent{Kind: kind, LinkType: typ, Text: strings.TrimPrefix(ref, "#")})
		}
	}
	return true
}

// parseTags handles the +/-/= prefix protocol: the prefix is sticky
// across subsequent bare tokens of the same directive, and `=` clears
// all existing tags before adding.
func parseTags(b *Batch, value string) {
	add := true
	for _, tok := range strings.Fields(value) {
		switch tok[0] {
		case '-':
			add = false
			tok = tok[1:]
		case '+':
			add = true
			tok = tok[1:]
		case '=':
			add = true
			b.add(Intent{Kind: ClearTags})
			tok = tok[1:]
		}
		if tok == "" {
			continue
		}
		if add {
			b.add(Intent{Kind: AddTag, Text: tok})
		} else {
			b.add(Intent{Kind: RemoveTag, Text: tok})
		}
	}
}

func parseLinkKey(key string) (typ models.LinkType, remove, ok bool) {
	if strings.HasPrefix(key, "un") {
		remove = true
		key = strings.TrimPrefix(key, "un")
	}
	typ, err := models.ParseLinkType(key)
	if err != nil {
		return 0, false, false
	}
	return typ, remove, true
}

func parseProgress(value string) (int, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), "%")
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 100 {
		return 0, fmt.Errorf("progress %d out of range", n)
	}
	return n, nil
}

var deadlineLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDeadline parses a date/time expression into a timestamp.
func ParseDeadline(value string) (time.Time, error) {
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
