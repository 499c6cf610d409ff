package dispatcher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mhowlett/infumap/internal/config"
	"github.com/mhowlett/infumap/internal/dispatcher"
	"github.com/mhowlett/infumap/internal/engine"
	"github.com/mhowlett/infumap/internal/user"
)

func newTestEngine(t *testing.T) (*engine.Engine, string, string) {
	t.Helper()
	dir := t.TempDir()
	eng, err := engine.New(config.Config{DBDir: dir, FilesDir: dir, CacheDir: dir}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	salt, err := user.NewSalt()
	require.NoError(t, err)
	u := user.User{ID: "user1", Username: "alice", PasswordSalt: salt, PasswordHash: user.HashPassword("hunter2", salt), CreationDate: 1}
	require.NoError(t, eng.Users.Create(u))

	require.NoError(t, eng.Sessions.Create("sess1", "user1", time.Now().UnixMilli()))

	_, err = eng.ItemIndex("user1", true)
	require.NoError(t, err)

	return eng, "user1", "sess1"
}

func TestDispatchRejectsUnknownSession(t *testing.T) {
	eng, userID, _ := newTestEngine(t)
	d := dispatcher.New(eng, zap.NewNop())

	resp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: "bogus", Command: "get-root-items"})
	assert.False(t, resp.Success)
}

func TestDispatchRejectsSessionUserMismatch(t *testing.T) {
	eng, _, sessionID := newTestEngine(t)
	d := dispatcher.New(eng, zap.NewNop())

	resp := d.Dispatch(dispatcher.Request{UserID: "someone-else", SessionID: sessionID, Command: "get-root-items"})
	assert.False(t, resp.Success)
}

func TestAddItemThenGetRootItems(t *testing.T) {
	eng, userID, sessionID := newTestEngine(t)
	d := dispatcher.New(eng, zap.NewNop())

	addResp := d.Dispatch(dispatcher.Request{
		UserID:    userID,
		SessionID: sessionID,
		Command:   "add-item",
		JSONData: map[string]any{
			"id":                   "page1",
			"itemType":             "page",
			"parentId":             nil,
			"relationshipToParent": "no-parent",
			"creationDate":         1.0,
			"lastModifiedDate":     1.0,
			"ordering":             []any{128.0},
			"title":                "Home",
			"spatialPositionGr":    map[string]any{"x": 0.0, "y": 0.0},
			"spatialWidthGr":       600.0,
			"innerSpatialWidthGr":  1200.0,
			"naturalAspect":        1.5,
			"backgroundColorIndex": 0.0,
			"popupPositionGr":      map[string]any{"x": 0.0, "y": 0.0},
			"popupAlignmentPoint":  "center",
			"popupWidthGr":         300.0,
		},
	})
	require.True(t, addResp.Success)
	assert.Equal(t, "page1", addResp.JSONData["id"])

	rootsResp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: sessionID, Command: "get-root-items"})
	require.True(t, rootsResp.Success)
	items, ok := rootsResp.JSONData["items"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "page1", items[0]["id"])
}

func TestUpdateItemChangesTitleAndPersists(t *testing.T) {
	eng, userID, sessionID := newTestEngine(t)
	d := dispatcher.New(eng, zap.NewNop())

	base := map[string]any{
		"id":                   "page1",
		"itemType":             "page",
		"ownerId":              userID,
		"parentId":             nil,
		"relationshipToParent": "no-parent",
		"creationDate":         1.0,
		"lastModifiedDate":     1.0,
		"ordering":             []any{128.0},
		"title":                "Home",
		"spatialPositionGr":    map[string]any{"x": 0.0, "y": 0.0},
		"spatialWidthGr":       600.0,
		"innerSpatialWidthGr":  1200.0,
		"naturalAspect":        1.5,
		"backgroundColorIndex": 0.0,
		"popupPositionGr":      map[string]any{"x": 0.0, "y": 0.0},
		"popupAlignmentPoint":  "center",
		"popupWidthGr":         300.0,
	}

	addResp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: sessionID, Command: "add-item", JSONData: base})
	require.True(t, addResp.Success)

	updated := make(map[string]any, len(base))
	for k, v := range base {
		updated[k] = v
	}
	updated["title"] = "Renamed"
	updateResp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: sessionID, Command: "update-item", JSONData: updated})
	require.True(t, updateResp.Success)

	getResp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: sessionID, Command: "get-item", JSONData: map[string]any{"id": "page1"}})
	require.True(t, getResp.Success)
	item, ok := getResp.JSONData["item"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Renamed", item["title"])
}

func TestUpdateItemRejectsOwnershipMismatch(t *testing.T) {
	eng, userID, sessionID := newTestEngine(t)
	d := dispatcher.New(eng, zap.NewNop())

	base := map[string]any{
		"id":                   "page1",
		"itemType":             "page",
		"ownerId":              userID,
		"parentId":             nil,
		"relationshipToParent": "no-parent",
		"creationDate":         1.0,
		"lastModifiedDate":     1.0,
		"ordering":             []any{128.0},
		"title":                "Home",
		"spatialPositionGr":    map[string]any{"x": 0.0, "y": 0.0},
		"spatialWidthGr":       600.0,
		"innerSpatialWidthGr":  1200.0,
		"naturalAspect":        1.5,
		"backgroundColorIndex": 0.0,
		"popupPositionGr":      map[string]any{"x": 0.0, "y": 0.0},
		"popupAlignmentPoint":  "center",
		"popupWidthGr":         300.0,
	}
	addResp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: sessionID, Command: "add-item", JSONData: base})
	require.True(t, addResp.Success)

	hijacked := make(map[string]any, len(base))
	for k, v := range base {
		hijacked[k] = v
	}
	hijacked["ownerId"] = "someone-else"
	updateResp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: sessionID, Command: "update-item", JSONData: hijacked})
	assert.False(t, updateResp.Success)
}

func TestUnknownCommandFails(t *testing.T) {
	eng, userID, sessionID := newTestEngine(t)
	d := dispatcher.New(eng, zap.NewNop())

	resp := d.Dispatch(dispatcher.Request{UserID: userID, SessionID: sessionID, Command: "delete-everything"})
	assert.False(t, resp.Success)
}
