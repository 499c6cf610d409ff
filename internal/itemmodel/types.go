// Package itemmodel implements the polymorphic item type and its JSON
// serializer, diff, and update-apply logic. Items are modeled as a
// tagged union over PageItem/NoteItem/FileItem/TableItem,
// each a distinct Go type sharing CommonFields, satisfying the Item
// interface — so a NoteItem simply has no field to misuse as a page's
// popupAlignmentPoint, enforced at compile time rather than by a flat
// record of all-optional fields.
package itemmodel

import (
	"encoding/json"
	"fmt"
)

// ItemType discriminates the four item variants.
type ItemType int

const (
	TypePage ItemType = iota
	TypeNote
	TypeFile
	TypeTable
)

func (t ItemType) String() string {
	switch t {
	case TypePage:
		return "page"
	case TypeNote:
		return "note"
	case TypeFile:
		return "file"
	case TypeTable:
		return "table"
	default:
		return "unknown"
	}
}

func ParseItemType(s string) (ItemType, error) {
	switch s {
	case "page":
		return TypePage, nil
	case "note":
		return TypeNote, nil
	case "file":
		return TypeFile, nil
	case "table":
		return TypeTable, nil
	default:
		return 0, fmt.Errorf("invalid itemType %q", s)
	}
}

func (t ItemType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *ItemType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseItemType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RelationshipToParent is child, attachment, or no-parent (roots).
type RelationshipToParent int

const (
	RelationshipNoParent RelationshipToParent = iota
	RelationshipChild
	RelationshipAttachment
)

func (r RelationshipToParent) String() string {
	switch r {
	case RelationshipNoParent:
		return "no-parent"
	case RelationshipChild:
		return "child"
	case RelationshipAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

func ParseRelationshipToParent(s string) (RelationshipToParent, error) {
	switch s {
	case "no-parent":
		return RelationshipNoParent, nil
	case "child":
		return RelationshipChild, nil
	case "attachment":
		return RelationshipAttachment, nil
	default:
		return 0, fmt.Errorf("invalid relationshipToParent %q", s)
	}
}

func (r RelationshipToParent) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

func (r *RelationshipToParent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRelationshipToParent(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// AlignmentPoint enumerates the nine popup anchors.
type AlignmentPoint int

const (
	AlignCenter AlignmentPoint = iota
	AlignLeftCenter
	AlignTopCenter
	AlignRightCenter
	AlignBottomCenter
	AlignTopLeft
	AlignTopRight
	AlignBottomRight
	AlignBottomLeft
)

var alignmentPointNames = map[AlignmentPoint]string{
	AlignCenter:       "center",
	AlignLeftCenter:   "left-center",
	AlignTopCenter:    "top-center",
	AlignRightCenter:  "right-center",
	AlignBottomCenter: "bottom-center",
	AlignTopLeft:      "top-left",
	AlignTopRight:     "top-right",
	AlignBottomRight:  "bottom-right",
	AlignBottomLeft:   "bottom-left",
}

func (a AlignmentPoint) String() string {
	if s, ok := alignmentPointNames[a]; ok {
		return s
	}
	return "unknown"
}

func ParseAlignmentPoint(s string) (AlignmentPoint, error) {
	for k, v := range alignmentPointNames {
		if v == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid popupAlignmentPoint %q", s)
}

func (a AlignmentPoint) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *AlignmentPoint) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseAlignmentPoint(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Vector2 is an integer 2-vector in grid units.
type Vector2 struct {
	X int
	Y int
}
