package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsliepen/lightbts/internal/models"
)

func kinds(b Batch) []Kind {
	out := make([]Kind, len(b.Intents))
	for i, in := range b.Intents {
		out[i] = in.Kind
	}
	return out
}

func TestParse_Empty(t *testing.T) {
	b := Parse("just a plain report\nwith some text\n", nil)
	assert.Empty(t, b.Intents)
	assert.Empty(t, b.Warnings)
}

func TestParse_StatusAndSeverity(t *testing.T) {
	b := Parse("Status: closed\nSeverity: grave\n\nmore text\n", nil)
	require.Len(t, b.Intents, 2)
	assert.Equal(t, SetStatus, b.Intents[0].Kind)
	assert.Equal(t, models.StatusClosed, b.Intents[0].Status)
	assert.Equal(t, SetSeverity, b.Intents[1].Kind)
	assert.Equal(t, models.SeverityGrave, b.Intents[1].Severity)
}

func TestParse_CaseInsensitiveKeys(t *testing.T) {
	b := Parse("STATUS: open\nseverity: minor\n", nil)
	assert.Equal(t, []Kind{SetStatus, SetSeverity}, kinds(b))
}

func TestParse_UnknownKeyEndsPreamble(t *testing.T) {
	// "Remember:" is prose, not a directive; nothing after it counts.
	b := Parse("Severity: minor\nRemember: check the logs\nStatus: closed\n", nil)
	assert.Equal(t, []Kind{SetSeverity}, kinds(b))
}

func TestParse_BlankLineEndsPreamble(t *testing.T) {
	b := Parse("Severity: minor\n\nStatus: closed\n", nil)
	assert.Equal(t, []Kind{SetSeverity}, kinds(b))
}

func TestParse_InvalidValueWarnsAndContinues(t *testing.T) {
	b := Parse("Severity: apocalyptic\nStatus: closed\n", nil)
	assert.Equal(t, []Kind{SetStatus}, kinds(b))
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], "apocalyptic")
}

func TestParse_LastDirectiveWins(t *testing.T) {
	b := Parse("Status: open\nStatus: closed\n", nil)
	require.Len(t, b.Intents, 1)
	assert.Equal(t, models.StatusClosed, b.Intents[0].Status)
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], "status")
}

func TestParse_OwnerPairing(t *testing.T) {
	// Owner and its removal are the same field; the last one wins.
	b := Parse("Owner: alice@example.com\nOwner: -\n", nil)
	require.Len(t, b.Intents, 1)
	assert.Equal(t, ClearOwner, b.Intents[0].Kind)
	assert.Len(t, b.Warnings, 1)
}

func TestParse_Tags(t *testing.T) {
	b := Parse("Tags: +urgent regression -wontfix\n", nil)
	require.Len(t, b.Intents, 3)
	assert.Equal(t, Intent{Kind: AddTag, Text: "urgent"}, b.Intents[0])
	// The + prefix is sticky across bare tokens.
	assert.Equal(t, Intent{Kind: AddTag, Text: "regression"}, b.Intents[1])
	assert.Equal(t, Intent{Kind: RemoveTag, Text: "wontfix"}, b.Intents[2])
}

func TestParse_TagsReplace(t *testing.T) {
	b := Parse("Tags: =fresh start\n", nil)
	assert.Equal(t, []Kind{ClearTags, AddTag, AddTag}, kinds(b))
	assert.Equal(t, "fresh", b.Intents[1].Text)
	assert.Equal(t, "start", b.Intents[2].Text)
}

func TestParse_Versions(t *testing.T) {
	b := Parse("Found: 1.0 1.1\nFixed: 2.0\nNotfound: 1.1\nVersion: 3.0\n", nil)
	assert.Equal(t, []Kind{VersionFound, VersionFound, VersionFixed, VersionNotFound, VersionCurrent}, kinds(b))
	assert.Equal(t, "3.0", b.Intents[4].Text)
}

func TestParse_Progress(t *testing.T) {
	b := Parse("Progress: 75%\n", nil)
	require.Len(t, b.Intents, 1)
	assert.Equal(t, 75, b.Intents[0].Progress)

	b = Parse("Progress: 150\n", nil)
	assert.Empty(t, b.Intents)
	assert.Len(t, b.Warnings, 1)
}

func TestParse_Deadline(t *testing.T) {
	b := Parse("Deadline: 2026-09-30\n", nil)
	require.Len(t, b.Intents, 1)
	assert.Equal(t, SetDeadline, b.Intents[0].Kind)
	assert.Equal(t, 2026, b.Intents[0].Deadline.Year())

	// "-" clears the deadline; the zero time encodes that.
	b = Parse("Deadline: -\n", nil)
	require.Len(t, b.Intents, 1)
	assert.True(t, b.Intents[0].Deadline.IsZero())

	b = Parse("Deadline: whenever\n", nil)
	assert.Empty(t, b.Intents)
	assert.Len(t, b.Warnings, 1)
}

func TestParseDeadline_Layouts(t *testing.T) {
	for _, value := range []string{
		"2026-09-30",
		"2026-09-30 17:00",
		"2026-09-30 17:00:05",
		"2026-09-30T17:00:05+02:00",
		"Wed, 30 Sep 2026 17:00:05 +0200",
	} {
		d, err := ParseDeadline(value)
		require.NoError(t, err, value)
		assert.Equal(t, time.September, d.Month(), value)
	}
}

func TestParse_TitleAndTopic(t *testing.T) {
	b := Parse("Topic: new title\n", nil)
	require.Len(t, b.Intents, 1)
	assert.Equal(t, Intent{Kind: SetTitle, Text: "new title"}, b.Intents[0])
}

func TestParse_Links(t *testing.T) {
	b := Parse("Blocks: #7 12\nUnduplicates: 3\n", nil)
	require.Len(t, b.Intents, 3)
	assert.Equal(t, Intent{Kind: AddLink, LinkType: models.LinkBlocks, Text: "7"}, b.Intents[0])
	assert.Equal(t, Intent{Kind: AddLink, LinkType: models.LinkBlocks, Text: "12"}, b.Intents[1])
	assert.Equal(t, Intent{Kind: RemoveLink, LinkType: models.LinkDuplicates, Text: "3"}, b.Intents[2])
}

func TestParse_SeedIsOverridden(t *testing.T) {
	seed := []Intent{{Kind: SetStatus, Status: models.StatusClosed}}

	// Without a body directive the seed survives.
	b := Parse("some text\n", seed)
	require.Len(t, b.Intents, 1)
	assert.Equal(t, models.StatusClosed, b.Intents[0].Status)

	// A body directive for the same field replaces it.
	b = Parse("Status: open\n", seed)
	require.Len(t, b.Intents, 1)
	assert.Equal(t, models.StatusOpen, b.Intents[0].Status)
}
