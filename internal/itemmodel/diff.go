package itemmodel

import (
	"fmt"

	"github.com/mhowlett/infumap/internal/apperr"
)

// immutableFields can never appear in an update record: id and ownerId
// identify the record, itemType is fixed at creation, and
// creationDate/originalCreationDate record facts about the past.
var immutableFields = map[string]bool{
	"id":                   true,
	"itemType":             true,
	"ownerId":              true,
	"creationDate":         true,
	"originalCreationDate": true,
}

// CreateUpdate computes the field map for an update record transitioning
// old -> new. Returns an empty map if the two values are equivalent,
// which the caller (storelog.Store.Update) treats as a no-op and rejects.
func CreateUpdate(old, new Item) (map[string]any, error) {
	if old.RecordID() != new.RecordID() {
		return nil, apperr.New(apperr.Invariant, "cannot change item id in an update")
	}
	if old.Common().OwnerID != new.Common().OwnerID {
		return nil, apperr.New(apperr.Invariant, "cannot change ownerId in an update")
	}
	if old.ItemType() != new.ItemType() {
		return nil, apperr.New(apperr.Invariant, "cannot change itemType in an update")
	}
	if (old.Common().ParentID == nil) != (new.Common().ParentID == nil) {
		return nil, apperr.New(apperr.Invariant, "cannot transition parentId between null and non-null in an update")
	}

	oldFields, err := ToJSON(old)
	if err != nil {
		return nil, err
	}
	newFields, err := ToJSON(new)
	if err != nil {
		return nil, err
	}

	diff := map[string]any{}
	for k, nv := range newFields {
		if immutableFields[k] {
			continue
		}
		ov, present := oldFields[k]
		if !present || !deepEqual(ov, nv) {
			diff[k] = nv
		}
	}
	return diff, nil
}

// ApplyUpdate applies an update record's field map onto base, returning
// the new Item. Used both for live updates and for replaying "update"
// records, so the result must be identical either way.
func ApplyUpdate(base Item, fields map[string]any) (Item, error) {
	for k := range fields {
		if immutableFields[k] {
			return nil, apperr.New(apperr.Invariant, fmt.Sprintf("field %q is immutable", k))
		}
	}

	if rawParent, present := fields["parentId"]; present {
		wasNil := base.Common().ParentID == nil
		willBeNil := rawParent == nil
		if wasNil != willBeNil {
			return nil, apperr.New(apperr.Invariant, "cannot transition parentId between null and non-null in an update")
		}
	}

	merged, err := ToJSON(base)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return FromJSON(merged)
}

func deepEqual(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !deepEqual(av, bv) {
				return false
			}
		}
		return true
	}

	aa, aok := a.([]any)
	ba, bok := b.([]any)
	if aok && bok {
		if len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !deepEqual(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}

	ai, aok := a.([]int)
	bi, bok := b.([]int)
	if aok && bok {
		if len(ai) != len(bi) {
			return false
		}
		for i := range ai {
			if ai[i] != bi[i] {
				return false
			}
		}
		return true
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}

	return a == b
}
