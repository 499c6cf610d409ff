// Package dispatcher implements the command envelope: session
// validation, lazy per-user item index load, and command routing. One
// Dispatch call holds the engine's single coarse-grained mutex for its
// entire duration.
package dispatcher

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mhowlett/infumap/internal/apperr"
	"github.com/mhowlett/infumap/internal/engine"
	"github.com/mhowlett/infumap/internal/itemindex"
	"github.com/mhowlett/infumap/internal/itemmodel"
	"github.com/mhowlett/infumap/pkg/fmtt"
)

// Request is the inbound command envelope.
type Request struct {
	UserID    string
	SessionID string
	Command   string
	JSONData  map[string]any
}

// Response is the outbound command envelope. JSONData is nil on
// failure.
type Response struct {
	Success  bool
	JSONData map[string]any
}

// Dispatcher routes validated commands to the engine.
type Dispatcher struct {
	eng *engine.Engine
	log *zap.Logger
}

func New(eng *engine.Engine, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{eng: eng, log: log.Named("dispatcher")}
}

type handlerFunc func(idx *itemindex.Index, userID string, data map[string]any) (map[string]any, error)

var handlers = map[string]handlerFunc{
	"get-item":        handleGetItem,
	"get-root-items":  handleGetRootItems,
	"get-children":    handleGetChildren,
	"get-attachments": handleGetAttachments,
	"add-item":        handleAddItem,
	"update-item":     handleUpdateItem,
}

// Dispatch validates the session, lazily loads the user's item index,
// and routes req.Command. Any error along the way is logged with full
// context and surfaced to the caller only as success=false — no
// internal detail crosses the boundary.
func (d *Dispatcher) Dispatch(req Request) Response {
	d.eng.Mu.Lock()
	defer d.eng.Mu.Unlock()

	resp, err := d.dispatchLocked(req)
	if err != nil {
		d.log.Warn("command failed",
			zap.String("command", req.Command),
			zap.String("userId", req.UserID),
			zap.Bool("success", false),
			zap.Error(err),
		)
		d.log.Debug("command failure chain", zap.String("chain", fmtt.ErrChain(err)))
		return Response{Success: false}
	}
	return Response{Success: true, JSONData: resp}
}

func (d *Dispatcher) dispatchLocked(req Request) (map[string]any, error) {
	sessionUserID, err := d.eng.Sessions.Get(req.SessionID)
	if err != nil {
		return nil, err
	}
	if sessionUserID != req.UserID {
		return nil, apperr.New(apperr.Auth, "session does not belong to userId")
	}

	handler, ok := handlers[req.Command]
	if !ok {
		return nil, apperr.New(apperr.RecordShape, fmt.Sprintf("unknown command %q", req.Command))
	}

	idx, err := d.eng.ItemIndex(req.UserID, false)
	if err != nil {
		return nil, err
	}

	return handler(idx, req.UserID, req.JSONData)
}

func requireID(data map[string]any) (string, error) {
	id, ok := data["id"].(string)
	if !ok || id == "" {
		return "", apperr.New(apperr.RecordShape, "missing required field \"id\"")
	}
	return id, nil
}

func handleGetItem(idx *itemindex.Index, userID string, data map[string]any) (map[string]any, error) {
	id, err := requireID(data)
	if err != nil {
		return nil, err
	}
	it, ok := idx.Get(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown item id "+id)
	}
	fields, err := itemmodel.ToJSON(it)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": fields}, nil
}

func handleGetRootItems(idx *itemindex.Index, userID string, data map[string]any) (map[string]any, error) {
	items := idx.GetRootItems(userID)
	return map[string]any{"items": itemsToJSON(items)}, nil
}

func handleGetChildren(idx *itemindex.Index, userID string, data map[string]any) (map[string]any, error) {
	id, err := requireID(data)
	if err != nil {
		return nil, err
	}
	ids := idx.GetChildren(id)
	return map[string]any{"items": itemsToJSON(resolveAll(idx, ids))}, nil
}

func handleGetAttachments(idx *itemindex.Index, userID string, data map[string]any) (map[string]any, error) {
	id, err := requireID(data)
	if err != nil {
		return nil, err
	}
	ids := idx.GetAttachments(id)
	return map[string]any{"items": itemsToJSON(resolveAll(idx, ids))}, nil
}

func resolveAll(idx *itemindex.Index, ids []string) []itemmodel.Item {
	out := make([]itemmodel.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := idx.Get(id); ok {
			out = append(out, it)
		}
	}
	return out
}

func itemsToJSON(items []itemmodel.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		fields, err := itemmodel.ToJSON(it)
		if err != nil {
			continue
		}
		out = append(out, fields)
	}
	return out
}

func handleAddItem(idx *itemindex.Index, userID string, data map[string]any) (map[string]any, error) {
	fields := cloneFields(data)
	fields["ownerId"] = userID
	it, err := itemmodel.FromJSON(fields)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(it); err != nil {
		return nil, err
	}
	return map[string]any{"id": it.RecordID()}, nil
}

func handleUpdateItem(idx *itemindex.Index, userID string, data map[string]any) (map[string]any, error) {
	id, err := requireID(data)
	if err != nil {
		return nil, err
	}
	cur, ok := idx.Get(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown item id "+id)
	}
	if cur.Common().OwnerID != userID {
		return nil, apperr.New(apperr.Auth, "cannot update item owned by another user")
	}

	next, err := itemmodel.FromJSON(cloneFields(data))
	if err != nil {
		return nil, err
	}
	if next.Common().OwnerID != userID {
		return nil, apperr.New(apperr.Auth, "cannot update item owned by another user")
	}
	if err := idx.Update(next); err != nil {
		return nil, err
	}
	return nil, nil
}

func cloneFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
