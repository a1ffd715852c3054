package models

import "fmt"

// LinkType represents the type of a directed relation between two bugs.
type LinkType int

const (
	LinkRelates LinkType = iota
	LinkDuplicates
	LinkDepends
	LinkBlocks
)

var linkTypeNames = []string{"relates", "duplicates", "depends", "blocks"}

// Reverse readings, used only for display of incoming links.
var linkTypeReverseNames = []string{"related-to-by", "duplicated-by", "depended-on-by", "blocked-by"}

func (t LinkType) String() string {
	if t < 0 || int(t) >= len(linkTypeNames) {
		return fmt.Sprintf("link(%d)", int(t))
	}
	return linkTypeNames[t]
}

// ReverseString returns the display name for the reverse direction of
// the link type.
func (t LinkType) ReverseString() string {
	if t < 0 || int(t) >= len(linkTypeReverseNames) {
		return fmt.Sprintf("link(%d)", int(t))
	}
	return linkTypeReverseNames[t]
}

// ParseLinkType accepts a link type name.
func ParseLinkType(arg string) (LinkType, error) {
	for i, name := range linkTypeNames {
		if name == arg {
			return LinkType(i), nil
		}
	}
	return 0, fmt.Errorf("invalid link type %q", arg)
}

// IsValidLinkType reports whether arg names a link type.
func IsValidLinkType(arg string) bool {
	_, err := ParseLinkType(arg)
	return err == nil
}

// Link is a directed, typed relation between two bugs. (A, B, Type) is
// unique. Self-links are storable but meaningless to consumers.
type Link struct {
	A    int64
	B    int64
	Type LinkType
}
