package itemmodel_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhowlett/infumap/internal/apperr"
	"github.com/mhowlett/infumap/internal/itemmodel"
)

func samplePage() *itemmodel.PageItem {
	return &itemmodel.PageItem{
		CommonFields: itemmodel.CommonFields{
			ID:                   "page1",
			OwnerID:              "owner1",
			ParentID:             nil,
			RelationshipToParent: itemmodel.RelationshipNoParent,
			CreationDate:         1000,
			LastModifiedDate:     1000,
			Ordering:             []byte{128},
			Title:                "Home",
			SpatialPositionGr:    itemmodel.Vector2{X: 0, Y: 0},
			SpatialWidthGr:       600,
		},
		InnerSpatialWidthGr:  1200,
		NaturalAspect:        1.5,
		BackgroundColorIndex: 2,
		PopupPositionGr:      itemmodel.Vector2{X: 10, Y: 20},
		PopupAlignmentPoint:  itemmodel.AlignCenter,
		PopupWidthGr:         300,
	}
}

func sampleNote(parent string) *itemmodel.NoteItem {
	return &itemmodel.NoteItem{
		CommonFields: itemmodel.CommonFields{
			ID:                   "note1",
			OwnerID:              "owner1",
			ParentID:             &parent,
			RelationshipToParent: itemmodel.RelationshipChild,
			CreationDate:         1001,
			LastModifiedDate:     1001,
			Ordering:             []byte{64},
			Title:                "todo",
			SpatialPositionGr:    itemmodel.Vector2{X: 1, Y: 1},
			SpatialWidthGr:       300,
		},
		URL: "https://example.com",
	}
}

func TestRoundTripEquality(t *testing.T) {
	orig := samplePage()
	fields, err := itemmodel.ToJSON(orig)
	require.NoError(t, err)

	back, err := itemmodel.FromJSON(fields)
	require.NoError(t, err)

	page, ok := back.(*itemmodel.PageItem)
	require.True(t, ok)
	assert.Equal(t, orig, page)
}

func TestRoundTripRootInvariant(t *testing.T) {
	n := sampleNote("page1")
	fields, err := itemmodel.ToJSON(n)
	require.NoError(t, err)
	back, err := itemmodel.FromJSON(fields)
	require.NoError(t, err)
	assert.False(t, itemmodel.IsRoot(back))
	assert.True(t, itemmodel.IsRoot(samplePage()))
}

func TestFromJSONRejectsUnknownField(t *testing.T) {
	fields, err := itemmodel.ToJSON(samplePage())
	require.NoError(t, err)
	fields["bogus"] = "x"

	_, err = itemmodel.FromJSON(fields)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.RecordShape))
}

func TestFromJSONRejectsTypeGateViolation(t *testing.T) {
	fields, err := itemmodel.ToJSON(sampleNote("page1"))
	require.NoError(t, err)
	fields["popupWidthGr"] = 10

	_, err = itemmodel.FromJSON(fields)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.RecordShape))
}

func TestFromJSONRejectsMissingParentID(t *testing.T) {
	fields, err := itemmodel.ToJSON(samplePage())
	require.NoError(t, err)
	delete(fields, "parentId")

	_, err = itemmodel.FromJSON(fields)
	require.Error(t, err)
}

func TestFromJSONRejectsNaN(t *testing.T) {
	fields, err := itemmodel.ToJSON(samplePage())
	require.NoError(t, err)
	fields["naturalAspect"] = math.NaN()

	_, err = itemmodel.FromJSON(fields)
	require.Error(t, err)
}

func TestFromJSONRejectsOutOfRangeOrdering(t *testing.T) {
	fields, err := itemmodel.ToJSON(samplePage())
	require.NoError(t, err)
	fields["ordering"] = []any{300}

	_, err = itemmodel.FromJSON(fields)
	require.Error(t, err)
}

func TestFromJSONRejectsRootWithRelationship(t *testing.T) {
	fields, err := itemmodel.ToJSON(samplePage())
	require.NoError(t, err)
	fields["relationshipToParent"] = "child"

	_, err = itemmodel.FromJSON(fields)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))
}

func TestCreateUpdateNoOpIsEmpty(t *testing.T) {
	p := samplePage()
	diff, err := itemmodel.CreateUpdate(p, p)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestCreateUpdateDetectsChangedTitle(t *testing.T) {
	old := samplePage()
	updated := samplePage()
	updated.Title = "Renamed"

	diff, err := itemmodel.CreateUpdate(old, updated)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Renamed"}, diff)
}

func TestCreateUpdateRejectsIDMismatch(t *testing.T) {
	old := samplePage()
	other := samplePage()
	other.ID = "different"

	_, err := itemmodel.CreateUpdate(old, other)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))
}

func TestCreateUpdateRejectsParentTransition(t *testing.T) {
	old := sampleNote("page1")
	becameRoot := sampleNote("page1")
	becameRoot.ParentID = nil

	_, err := itemmodel.CreateUpdate(old, becameRoot)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))
}

func TestApplyUpdateRoundTripsWithCreateUpdate(t *testing.T) {
	old := samplePage()
	updated := samplePage()
	updated.Title = "Renamed"
	updated.SpatialWidthGr = 700

	diff, err := itemmodel.CreateUpdate(old, updated)
	require.NoError(t, err)

	applied, err := itemmodel.ApplyUpdate(old, diff)
	require.NoError(t, err)
	assert.Equal(t, updated, applied)
}

func TestApplyUpdateRejectsImmutableField(t *testing.T) {
	old := samplePage()
	_, err := itemmodel.ApplyUpdate(old, map[string]any{"itemType": "note"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))
}

func TestApplyUpdateRejectsParentNullTransition(t *testing.T) {
	old := sampleNote("page1")
	_, err := itemmodel.ApplyUpdate(old, map[string]any{"parentId": nil})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))
}
