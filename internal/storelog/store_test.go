package storelog_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhowlett/infumap/internal/apperr"
	"github.com/mhowlett/infumap/internal/storelog"
)

// widget is a minimal Record used to exercise the generic store without
// pulling in the full item model.
type widget struct {
	ID   string
	Name string
	Tag  string
}

func (w widget) RecordID() string { return w.ID }

type widgetCodec struct{}

func (widgetCodec) ValueType() string { return "widget" }

func (widgetCodec) Marshal(w widget) (map[string]any, error) {
	return map[string]any{"id": w.ID, "name": w.Name, "tag": w.Tag}, nil
}

func (widgetCodec) Unmarshal(fields map[string]any) (widget, error) {
	for k := range fields {
		if k != "id" && k != "name" && k != "tag" {
			return widget{}, apperr.New(apperr.RecordShape, "unknown field "+k)
		}
	}
	id, _ := fields["id"].(string)
	name, _ := fields["name"].(string)
	tag, _ := fields["tag"].(string)
	if id == "" {
		return widget{}, apperr.New(apperr.RecordShape, "missing id")
	}
	return widget{ID: id, Name: name, Tag: tag}, nil
}

func (widgetCodec) Diff(old, new widget) (map[string]any, error) {
	if old.ID != new.ID {
		return nil, apperr.New(apperr.Invariant, "id mismatch")
	}
	diff := map[string]any{}
	if old.Name != new.Name {
		diff["name"] = new.Name
	}
	if old.Tag != new.Tag {
		diff["tag"] = new.Tag
	}
	return diff, nil
}

func (widgetCodec) Apply(base widget, fields map[string]any) (widget, error) {
	for k := range fields {
		if k != "name" && k != "tag" {
			return widget{}, apperr.New(apperr.RecordShape, "unknown field "+k)
		}
	}
	if v, ok := fields["name"]; ok {
		base.Name, _ = v.(string)
	}
	if v, ok := fields["tag"]; ok {
		base.Tag, _ = v.(string)
	}
	return base, nil
}

func TestInitCreatesDescriptorWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Close())
}

func TestAddGetUpdateRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.NoError(t, err)

	w := widget{ID: "W1", Name: "gadget", Tag: "a"}
	require.NoError(t, s.Add(w))

	got, ok := s.Get("W1")
	require.True(t, ok)
	assert.Equal(t, w, got)

	// duplicate add is an error
	err = s.Add(w)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))

	// no-op update is rejected
	err = s.Update(w)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))

	updated := w
	updated.Name = "widget-2"
	require.NoError(t, s.Update(updated))

	got, ok = s.Get("W1")
	require.True(t, ok)
	assert.Equal(t, "widget-2", got.Name)
	assert.Equal(t, "a", got.Tag)

	require.NoError(t, s.Remove("W1"))
	_, ok = s.Get("W1")
	assert.False(t, ok)

	// removing again is an error
	err = s.Remove("W1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))

	require.NoError(t, s.Close())
}

// TestReopenMatchesWriterState checks that reopening a log produced by
// a sequence of add/update/remove yields the same in-memory map as the
// writer had after its last operation.
func TestReopenMatchesWriterState(t *testing.T) {
	dir := t.TempDir()
	path := "widgets.json"

	s, err := storelog.Init(dir, path, widgetCodec{}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Add(widget{ID: "A", Name: "alpha", Tag: "x"}))
	require.NoError(t, s.Add(widget{ID: "B", Name: "beta", Tag: "y"}))
	require.NoError(t, s.Update(widget{ID: "A", Name: "alpha2", Tag: "x"}))
	require.NoError(t, s.Add(widget{ID: "C", Name: "gamma", Tag: "z"}))
	require.NoError(t, s.Remove("B"))
	require.NoError(t, s.Close())

	reopened, err := storelog.Init(dir, path, widgetCodec{}, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	a, ok := reopened.Get("A")
	require.True(t, ok)
	assert.Equal(t, "alpha2", a.Name)
	_, ok = reopened.Get("B")
	assert.False(t, ok)
	c, ok := reopened.Get("C")
	require.True(t, ok)
	assert.Equal(t, "gamma", c.Name)

	// insertion order preserved: A, C (B removed)
	iter := reopened.Iter()
	require.Len(t, iter, 2)
	assert.Equal(t, "A", iter[0].ID)
	assert.Equal(t, "C", iter[1].ID)
}

func TestReplayRejectsUnknownIDOnUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.json")

	s, err := storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Add(widget{ID: "A", Name: "alpha"}))
	require.NoError(t, s.Close())

	// simulate corruption: hand-append an update for an unknown id.
	appendRawLine(t, path, `{"__recordType":"update","id":"ZZZ","name":"x"}`)

	_, err = storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invariant))
}

func TestDuplicateDescriptorIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.json")

	s, err := storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	appendRawLine(t, path, `{"__recordType":"descriptor","version":0,"valueType":"widget"}`)

	_, err = storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.Error(t, err)
}

func TestValueTypeMismatchIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.json")
	writeFile(t, path, `{"__recordType":"descriptor","version":0,"valueType":"gizmo"}`+"\n")

	_, err := storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.FormatVersion))
}

func TestCompactToProducesEquivalentStore(t *testing.T) {
	dir := t.TempDir()
	path := "widgets.json"

	s, err := storelog.Init(dir, path, widgetCodec{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Add(widget{ID: "A", Name: "alpha", Tag: "x"}))
	require.NoError(t, s.Add(widget{ID: "B", Name: "beta", Tag: "y"}))
	require.NoError(t, s.Update(widget{ID: "A", Name: "alpha2", Tag: "x"}))
	require.NoError(t, s.Remove("B"))

	compactPath := filepath.Join(dir, "widgets.compact.json")
	require.NoError(t, s.CompactTo(compactPath))
	require.NoError(t, s.Close())

	compacted, err := storelog.Init(filepath.Dir(compactPath), filepath.Base(compactPath), widgetCodec{}, nil)
	require.NoError(t, err)
	defer compacted.Close()

	assert.Equal(t, 1, compacted.Len())
	a, ok := compacted.Get("A")
	require.True(t, ok)
	assert.Equal(t, "alpha2", a.Name)
}

func TestUnsupportedVersionIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.json")
	writeFile(t, path, `{"__recordType":"descriptor","version":7,"valueType":"widget"}`+"\n")

	_, err := storelog.Init(dir, "widgets.json", widgetCodec{}, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.FormatVersion))
}
