package itemmodel

// CommonFields holds the attributes every item variant carries.
type CommonFields struct {
	ID                   string
	OwnerID              string
	ParentID             *string // nil means no parent (root)
	RelationshipToParent RelationshipToParent
	CreationDate         int64
	LastModifiedDate     int64
	Ordering             []byte
	Title                string
	SpatialPositionGr    Vector2
	SpatialWidthGr       int
}

// Item is satisfied only by PageItem, NoteItem, FileItem, and TableItem.
// isItem seals the interface to this package, so the per-variant field
// gate is enforced by Go's type system: a NoteItem simply has no field
// to hold a page's popupAlignmentPoint.
type Item interface {
	ItemType() ItemType
	Common() *CommonFields
	RecordID() string
	isItem()
}

// PageItem is the "page" variant: innerSpatialWidthGr, naturalAspect,
// backgroundColorIndex, popupPositionGr, popupAlignmentPoint, popupWidthGr
// are all required on page and forbidden elsewhere.
type PageItem struct {
	CommonFields
	InnerSpatialWidthGr  int
	NaturalAspect        float64
	BackgroundColorIndex int
	PopupPositionGr      Vector2
	PopupAlignmentPoint  AlignmentPoint
	PopupWidthGr         int
}

func (p *PageItem) ItemType() ItemType    { return TypePage }
func (p *PageItem) Common() *CommonFields { return &p.CommonFields }
func (p *PageItem) RecordID() string      { return p.ID }
func (p *PageItem) isItem()               {}

// NoteItem is the "note" variant: url is required.
type NoteItem struct {
	CommonFields
	URL string
}

func (n *NoteItem) ItemType() ItemType    { return TypeNote }
func (n *NoteItem) Common() *CommonFields { return &n.CommonFields }
func (n *NoteItem) RecordID() string      { return n.ID }
func (n *NoteItem) isItem()               {}

// FileItem is the "file" variant: originalCreationDate is required and
// never mutable after creation.
type FileItem struct {
	CommonFields
	OriginalCreationDate int64
}

func (f *FileItem) ItemType() ItemType    { return TypeFile }
func (f *FileItem) Common() *CommonFields { return &f.CommonFields }
func (f *FileItem) RecordID() string      { return f.ID }
func (f *FileItem) isItem()               {}

// TableItem is the "table" variant: spatialHeightGr is required.
type TableItem struct {
	CommonFields
	SpatialHeightGr int
}

func (t *TableItem) ItemType() ItemType    { return TypeTable }
func (t *TableItem) Common() *CommonFields { return &t.CommonFields }
func (t *TableItem) RecordID() string      { return t.ID }
func (t *TableItem) isItem()               {}

// IsRoot reports whether the item has no parent, which always implies
// RelationshipToParent == no-parent.
func IsRoot(it Item) bool { return it.Common().ParentID == nil }
