// Package itemindex builds and maintains the in-memory indexes over a
// single user's item log: owner lookup, children-of-parent, and
// attachments-of-parent. One Index wraps one storelog.Store[itemmodel.Item]
// for exactly one user.
package itemindex

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mhowlett/infumap/internal/apperr"
	"github.com/mhowlett/infumap/internal/itemmodel"
	"github.com/mhowlett/infumap/internal/storelog"
)

// Index is the per-user item index. Root items (ParentID == nil) are
// additionally indexed as children of a virtual node keyed by the
// owning user's id, so "every root a user owns" is just GetChildren on
// the user's own id — an index-level back-reference that never touches
// the log store's own record shape.
type Index struct {
	log   *zap.Logger
	store *storelog.Store[itemmodel.Item]

	mu            sync.RWMutex
	ownerByItemID map[string]string
	childrenOf    map[string][]string
	attachmentsOf map[string][]string
}

// Load opens the per-user item log at dir/filename and builds the
// indexes from its current contents.
//
// creating resolves the open question from the item-index design: when
// creating is true the log file must not already exist (a brand-new
// user); when false it must already exist. The first violation is an
// Invariant error and the second a NotFound error; neither falls back.
func Load(dir, filename string, creating bool, log *zap.Logger) (*Index, error) {
	exists, err := fileExists(dirJoin(dir, filename))
	if err != nil {
		return nil, err
	}
	if creating && exists {
		return nil, apperr.New(apperr.Invariant, "cannot create item index: log file already exists")
	}
	if !creating && !exists {
		return nil, apperr.New(apperr.NotFound, "cannot load item index: log file does not exist")
	}

	store, err := storelog.Init[itemmodel.Item](dir, filename, itemmodel.Codec{}, log)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		log:           log,
		store:         store,
		ownerByItemID: make(map[string]string),
		childrenOf:    make(map[string][]string),
		attachmentsOf: make(map[string][]string),
	}
	for _, it := range store.Iter() {
		idx.indexItem(it)
	}
	return idx, nil
}

// indexItem registers it's id under ownerByItemID and the appropriate
// children-of/attachments-of bucket. Callers must hold mu for write.
func (idx *Index) indexItem(it itemmodel.Item) {
	c := it.Common()
	idx.ownerByItemID[c.ID] = c.OwnerID

	if itemmodel.IsRoot(it) {
		idx.childrenOf[c.OwnerID] = append(idx.childrenOf[c.OwnerID], c.ID)
		return
	}

	switch c.RelationshipToParent {
	case itemmodel.RelationshipAttachment:
		idx.attachmentsOf[*c.ParentID] = append(idx.attachmentsOf[*c.ParentID], c.ID)
	default:
		idx.childrenOf[*c.ParentID] = append(idx.childrenOf[*c.ParentID], c.ID)
	}
}

func (idx *Index) deindexItem(it itemmodel.Item) {
	c := it.Common()
	delete(idx.ownerByItemID, c.ID)

	if itemmodel.IsRoot(it) {
		idx.childrenOf[c.OwnerID] = removeID(idx.childrenOf[c.OwnerID], c.ID)
		return
	}
	switch c.RelationshipToParent {
	case itemmodel.RelationshipAttachment:
		idx.attachmentsOf[*c.ParentID] = removeID(idx.attachmentsOf[*c.ParentID], c.ID)
	default:
		idx.childrenOf[*c.ParentID] = removeID(idx.childrenOf[*c.ParentID], c.ID)
	}
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Add inserts a new item into the log store and the in-memory indexes.
func (idx *Index) Add(it itemmodel.Item) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.store.Add(it); err != nil {
		return err
	}
	idx.indexItem(it)
	return nil
}

// Update diffs and appends an update record, then re-derives the
// affected item's index bucket membership (its parent/relationship may
// have changed within the constraints itemmodel.CreateUpdate allows).
func (idx *Index) Update(it itemmodel.Item) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur, ok := idx.store.Get(it.RecordID())
	if !ok {
		return apperr.New(apperr.NotFound, "update for unknown item id "+it.RecordID())
	}

	if err := idx.store.Update(it); err != nil {
		return err
	}

	next, _ := idx.store.Get(it.RecordID())
	pc, nc := cur.Common(), next.Common()
	sameParent := (pc.ParentID == nil) == (nc.ParentID == nil) &&
		(pc.ParentID == nil || *pc.ParentID == *nc.ParentID)
	if sameParent && pc.RelationshipToParent == nc.RelationshipToParent {
		// Same bucket: keep the item's insertion-order position.
		return nil
	}
	idx.deindexItem(cur)
	idx.indexItem(next)
	return nil
}

// Remove deletes id from the log store, its children and attachments
// index buckets, and its owner-lookup entry. The id must have no
// children or attachments remaining; callers are expected to have
// already removed descendants.
func (idx *Index) Remove(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur, ok := idx.store.Get(id)
	if !ok {
		return apperr.New(apperr.NotFound, "remove for unknown item id "+id)
	}
	if len(idx.childrenOf[id]) > 0 || len(idx.attachmentsOf[id]) > 0 {
		return apperr.New(apperr.Invariant, "cannot remove item with children or attachments: "+id)
	}

	if err := idx.store.Remove(id); err != nil {
		return err
	}
	idx.deindexItem(cur)
	delete(idx.childrenOf, id)
	delete(idx.attachmentsOf, id)
	return nil
}

// Get returns the current value of item id, if present.
func (idx *Index) Get(id string) (itemmodel.Item, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.store.Get(id)
}

// GetChildren returns the ids of parentID's children, in insertion order.
func (idx *Index) GetChildren(parentID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneIDs(idx.childrenOf[parentID])
}

// GetAttachments returns the ids of parentID's attachments, in insertion order.
func (idx *Index) GetAttachments(parentID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneIDs(idx.attachmentsOf[parentID])
}

// GetRootItems returns every root item owned by ownerID, i.e. the
// children of the virtual node keyed by ownerID itself.
func (idx *Index) GetRootItems(ownerID string) []itemmodel.Item {
	idx.mu.RLock()
	ids := cloneIDs(idx.childrenOf[ownerID])
	idx.mu.RUnlock()

	out := make([]itemmodel.Item, 0, len(ids))
	for _, id := range ids {
		if v, ok := idx.store.Get(id); ok {
			out = append(out, v)
		}
	}
	return out
}

// OwnerOf returns the owning user id for itemID, if indexed.
func (idx *Index) OwnerOf(itemID string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.ownerByItemID[itemID]
	return id, ok
}

// Close releases the underlying log file handle.
func (idx *Index) Close() error {
	return idx.store.Close()
}

func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
