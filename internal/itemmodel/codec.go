package itemmodel

import "github.com/mhowlett/infumap/internal/storelog"

// Codec adapts Item to storelog.Store[Item]. It is the only place that
// wires ToJSON/FromJSON/CreateUpdate/ApplyUpdate into the generic log
// store's expected Marshal/Unmarshal/Diff/Apply shape.
type Codec struct{}

var _ storelog.Codec[Item] = Codec{}

func (Codec) ValueType() string { return "item" }

func (Codec) Marshal(v Item) (map[string]any, error) { return ToJSON(v) }

func (Codec) Unmarshal(fields map[string]any) (Item, error) { return FromJSON(fields) }

func (Codec) Diff(old, new Item) (map[string]any, error) { return CreateUpdate(old, new) }

func (Codec) Apply(base Item, fields map[string]any) (Item, error) { return ApplyUpdate(base, fields) }
