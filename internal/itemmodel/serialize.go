package itemmodel

import (
	"fmt"
	"math"

	"github.com/mhowlett/infumap/internal/apperr"
)

// allowedFields is the whitelist of every key any Item record may carry,
// excluding "__recordType" and "id" which the log store layer manages.
// Any other key is a hard error.
var allowedFields = map[string]bool{
	"itemType":             true,
	"ownerId":              true,
	"parentId":             true,
	"relationshipToParent": true,
	"creationDate":         true,
	"lastModifiedDate":     true,
	"ordering":             true,
	"title":                true,
	"spatialPositionGr":    true,
	"spatialWidthGr":       true,
	"spatialHeightGr":      true,
	"innerSpatialWidthGr":  true,
	"naturalAspect":        true,
	"backgroundColorIndex": true,
	"popupPositionGr":      true,
	"popupAlignmentPoint":  true,
	"popupWidthGr":         true,
	"url":                  true,
	"originalCreationDate": true,
}

// pageOnlyFields, noteOnlyFields, etc. name the type-gated fields, used to
// reject "present but not applicable" during FromJSON/Apply.
var (
	pageOnlyFields  = []string{"innerSpatialWidthGr", "naturalAspect", "backgroundColorIndex", "popupPositionGr", "popupAlignmentPoint", "popupWidthGr"}
	noteOnlyFields  = []string{"url"}
	fileOnlyFields  = []string{"originalCreationDate"}
	tableOnlyFields = []string{"spatialHeightGr"}
)

func otherTypeFields(t ItemType) []string {
	var out []string
	for typ, fields := range map[ItemType][]string{
		TypePage:  pageOnlyFields,
		TypeNote:  noteOnlyFields,
		TypeFile:  fileOnlyFields,
		TypeTable: tableOnlyFields,
	} {
		if typ == t {
			continue
		}
		out = append(out, fields...)
	}
	return out
}

// ToJSON renders it as the field map for an "entry" record, excluding
// "__recordType". parentId is always present, explicitly null when the
// item has no parent.
func ToJSON(it Item) (map[string]any, error) {
	c := it.Common()

	var parentID any
	if c.ParentID != nil {
		parentID = *c.ParentID
	} else {
		parentID = nil
	}

	ordering := make([]int, len(c.Ordering))
	for i, b := range c.Ordering {
		ordering[i] = int(b)
	}

	out := map[string]any{
		"id":                   c.ID,
		"itemType":             it.ItemType().String(),
		"ownerId":              c.OwnerID,
		"parentId":             parentID,
		"relationshipToParent": c.RelationshipToParent.String(),
		"creationDate":         c.CreationDate,
		"lastModifiedDate":     c.LastModifiedDate,
		"ordering":             ordering,
		"title":                c.Title,
		"spatialPositionGr":    vectorToJSON(c.SpatialPositionGr),
		"spatialWidthGr":       c.SpatialWidthGr,
	}

	switch v := it.(type) {
	case *PageItem:
		out["innerSpatialWidthGr"] = v.InnerSpatialWidthGr
		out["naturalAspect"] = v.NaturalAspect
		out["backgroundColorIndex"] = v.BackgroundColorIndex
		out["popupPositionGr"] = vectorToJSON(v.PopupPositionGr)
		out["popupAlignmentPoint"] = v.PopupAlignmentPoint.String()
		out["popupWidthGr"] = v.PopupWidthGr
	case *NoteItem:
		out["url"] = v.URL
	case *FileItem:
		out["originalCreationDate"] = v.OriginalCreationDate
	case *TableItem:
		out["spatialHeightGr"] = v.SpatialHeightGr
	default:
		return nil, apperr.New(apperr.RecordShape, fmt.Sprintf("unhandled item type %T", it))
	}

	return out, nil
}

func vectorToJSON(v Vector2) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y}
}

// FromJSON parses an entry record's field map (excluding "__recordType")
// into an Item, applying the full whitelist check and the type-gate table.
func FromJSON(fields map[string]any) (Item, error) {
	for k := range fields {
		if k == "id" {
			continue
		}
		if !allowedFields[k] {
			return nil, apperr.New(apperr.RecordShape, fmt.Sprintf("unknown field %q", k))
		}
	}

	id, err := requireString(fields, "id")
	if err != nil {
		return nil, err
	}
	itemTypeStr, err := requireString(fields, "itemType")
	if err != nil {
		return nil, err
	}
	itemType, perr := ParseItemType(itemTypeStr)
	if perr != nil {
		return nil, apperr.Wrap(apperr.RecordShape, "itemType", perr)
	}

	for _, f := range otherTypeFields(itemType) {
		if _, present := fields[f]; present {
			return nil, apperr.New(apperr.RecordShape, fmt.Sprintf("field %q not applicable to itemType %q", f, itemTypeStr))
		}
	}

	ownerID, err := requireString(fields, "ownerId")
	if err != nil {
		return nil, err
	}

	parentID, err := optionalParentID(fields)
	if err != nil {
		return nil, err
	}

	relStr, err := requireString(fields, "relationshipToParent")
	if err != nil {
		return nil, err
	}
	rel, perr := ParseRelationshipToParent(relStr)
	if perr != nil {
		return nil, apperr.Wrap(apperr.RecordShape, "relationshipToParent", perr)
	}

	creationDate, err := requireInt64(fields, "creationDate")
	if err != nil {
		return nil, err
	}
	lastModifiedDate, err := requireInt64(fields, "lastModifiedDate")
	if err != nil {
		return nil, err
	}
	ordering, err := requireOrdering(fields)
	if err != nil {
		return nil, err
	}
	title, err := requireString(fields, "title")
	if err != nil {
		return nil, err
	}
	spatialPositionGr, err := requireVector(fields, "spatialPositionGr")
	if err != nil {
		return nil, err
	}
	spatialWidthGr, err := requireInt(fields, "spatialWidthGr")
	if err != nil {
		return nil, err
	}

	common := CommonFields{
		ID:                   id,
		OwnerID:              ownerID,
		ParentID:             parentID,
		RelationshipToParent: rel,
		CreationDate:         creationDate,
		LastModifiedDate:     lastModifiedDate,
		Ordering:             ordering,
		Title:                title,
		SpatialPositionGr:    spatialPositionGr,
		SpatialWidthGr:       spatialWidthGr,
	}
	if err := checkRootInvariant(&common); err != nil {
		return nil, err
	}

	switch itemType {
	case TypePage:
		innerWidth, err := requireInt(fields, "innerSpatialWidthGr")
		if err != nil {
			return nil, err
		}
		naturalAspect, err := requireFloat(fields, "naturalAspect")
		if err != nil {
			return nil, err
		}
		bgColor, err := requireInt(fields, "backgroundColorIndex")
		if err != nil {
			return nil, err
		}
		popupPos, err := requireVector(fields, "popupPositionGr")
		if err != nil {
			return nil, err
		}
		popupAlignStr, err := requireString(fields, "popupAlignmentPoint")
		if err != nil {
			return nil, err
		}
		popupAlign, perr := ParseAlignmentPoint(popupAlignStr)
		if perr != nil {
			return nil, apperr.Wrap(apperr.RecordShape, "popupAlignmentPoint", perr)
		}
		popupWidth, err := requireInt(fields, "popupWidthGr")
		if err != nil {
			return nil, err
		}
		return &PageItem{
			CommonFields:         common,
			InnerSpatialWidthGr:  innerWidth,
			NaturalAspect:        naturalAspect,
			BackgroundColorIndex: bgColor,
			PopupPositionGr:      popupPos,
			PopupAlignmentPoint:  popupAlign,
			PopupWidthGr:         popupWidth,
		}, nil

	case TypeNote:
		url, err := requireString(fields, "url")
		if err != nil {
			return nil, err
		}
		return &NoteItem{CommonFields: common, URL: url}, nil

	case TypeFile:
		ocd, err := requireInt64(fields, "originalCreationDate")
		if err != nil {
			return nil, err
		}
		return &FileItem{CommonFields: common, OriginalCreationDate: ocd}, nil

	case TypeTable:
		h, err := requireInt(fields, "spatialHeightGr")
		if err != nil {
			return nil, err
		}
		return &TableItem{CommonFields: common, SpatialHeightGr: h}, nil

	default:
		return nil, apperr.New(apperr.RecordShape, fmt.Sprintf("unhandled itemType %q", itemTypeStr))
	}
}

func checkRootInvariant(c *CommonFields) error {
	if c.ParentID == nil && c.RelationshipToParent != RelationshipNoParent {
		return apperr.New(apperr.Invariant, "item with no parent must have relationshipToParent = no-parent")
	}
	if c.ParentID != nil && c.RelationshipToParent == RelationshipNoParent {
		return apperr.New(apperr.Invariant, "item with a parent must have relationshipToParent = child or attachment")
	}
	return nil
}

// --- field extraction helpers ---

func requireString(fields map[string]any, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", apperr.New(apperr.RecordShape, fmt.Sprintf("missing required field %q", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.New(apperr.RecordShape, fmt.Sprintf("field %q must be a string", key))
	}
	return s, nil
}

func requireInt64(fields map[string]any, key string) (int64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, apperr.New(apperr.RecordShape, fmt.Sprintf("missing required field %q", key))
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, apperr.New(apperr.RecordShape, fmt.Sprintf("field %q must be numeric", key))
	}
	return int64(f), nil
}

func requireInt(fields map[string]any, key string) (int, error) {
	n, err := requireInt64(fields, key)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func requireFloat(fields map[string]any, key string) (float64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, apperr.New(apperr.RecordShape, fmt.Sprintf("missing required field %q", key))
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, apperr.New(apperr.RecordShape, fmt.Sprintf("field %q must be numeric", key))
	}
	if math.IsNaN(f) {
		return 0, apperr.New(apperr.RecordShape, fmt.Sprintf("field %q is NaN", key))
	}
	return f, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func requireVector(fields map[string]any, key string) (Vector2, error) {
	v, ok := fields[key]
	if !ok {
		return Vector2{}, apperr.New(apperr.RecordShape, fmt.Sprintf("missing required field %q", key))
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Vector2{}, apperr.New(apperr.RecordShape, fmt.Sprintf("field %q must be an {x,y} object", key))
	}
	x, xok := toFloat(m["x"])
	y, yok := toFloat(m["y"])
	if !xok || !yok {
		return Vector2{}, apperr.New(apperr.RecordShape, fmt.Sprintf("field %q must have integer x and y", key))
	}
	return Vector2{X: int(x), Y: int(y)}, nil
}

func requireOrdering(fields map[string]any) ([]byte, error) {
	v, ok := fields["ordering"]
	if !ok {
		return nil, apperr.New(apperr.RecordShape, "missing required field \"ordering\"")
	}

	// ordering arrives as []any (JSON-decoded log/transport data) or as
	// []int (ToJSON's own native-typed output, round-tripped internally
	// by ApplyUpdate) — both are accepted here.
	var elems []any
	switch arr := v.(type) {
	case []any:
		elems = arr
	case []int:
		elems = make([]any, len(arr))
		for i, n := range arr {
			elems[i] = n
		}
	default:
		return nil, apperr.New(apperr.RecordShape, "field \"ordering\" must be an array")
	}

	out := make([]byte, len(elems))
	for i, e := range elems {
		f, ok := toFloat(e)
		if !ok || f != math.Trunc(f) || f < 0 || f > 255 {
			return nil, apperr.New(apperr.RecordShape, fmt.Sprintf("ordering element %d must be an integer in [0,255]", i))
		}
		out[i] = byte(f)
	}
	return out, nil
}

func optionalParentID(fields map[string]any) (*string, error) {
	v, present := fields["parentId"]
	if !present {
		return nil, apperr.New(apperr.RecordShape, "missing required field \"parentId\" (must be present, null for roots)")
	}
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, apperr.New(apperr.RecordShape, "field \"parentId\" must be a string or null")
	}
	return &s, nil
}
