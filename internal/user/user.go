// Package user implements the user model and index: username lookup and
// password hashing/verification over a storelog.Store[User].
package user

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mhowlett/infumap/internal/apperr"
	"github.com/mhowlett/infumap/internal/storelog"
	"github.com/mhowlett/infumap/pkg/uid"
)

// User is a single account record.
type User struct {
	ID           string
	Username     string
	PasswordSalt string // per-user Uid
	PasswordHash string // hex sha256("{password}-{salt}")
	CreationDate int64
}

func (u User) RecordID() string { return u.ID }

// HashPassword derives the salted hash stored for a new or changed
// password: SHA-256 over the literal string "{password}-{salt}".
func HashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + "-" + salt))
	return hex.EncodeToString(sum[:])
}

// NewSalt returns a fresh per-user Uid for use as a password salt.
func NewSalt() (string, error) {
	return uid.New(), nil
}

// VerifyPassword reports whether password matches u's stored hash,
// using a constant-time comparison to avoid timing side channels
// (grounded on the same subtle.ConstantTimeCompare pattern used for
// credential checks elsewhere in this stack).
func VerifyPassword(u User, password string) bool {
	want := HashPassword(password, u.PasswordSalt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(u.PasswordHash)) == 1
}

// Index wraps a storelog.Store[User] with a username -> id lookup.
type Index struct {
	store *storelog.Store[User]

	mu           sync.RWMutex
	idByUsername map[string]string
}

// Load opens (or creates) the user log at dir/filename.
func Load(dir, filename string, log *zap.Logger) (*Index, error) {
	store, err := storelog.Init[User](dir, filename, Codec{}, log)
	if err != nil {
		return nil, err
	}
	idx := &Index{store: store, idByUsername: make(map[string]string)}
	for _, u := range store.Iter() {
		idx.idByUsername[u.Username] = u.ID
	}
	return idx, nil
}

// Create adds a new user, rejecting a duplicate username.
func (idx *Index) Create(u User) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.idByUsername[u.Username]; exists {
		return apperr.New(apperr.Invariant, fmt.Sprintf("username %q already taken", u.Username))
	}
	if err := idx.store.Add(u); err != nil {
		return err
	}
	idx.idByUsername[u.Username] = u.ID
	return nil
}

// GetByID returns the user with the given id.
func (idx *Index) GetByID(id string) (User, bool) {
	return idx.store.Get(id)
}

// GetByUsername returns the user with the given username.
func (idx *Index) GetByUsername(username string) (User, bool) {
	idx.mu.RLock()
	id, ok := idx.idByUsername[username]
	idx.mu.RUnlock()
	if !ok {
		return User{}, false
	}
	return idx.store.Get(id)
}

// Authenticate verifies username/password and returns the matching user.
func (idx *Index) Authenticate(username, password string) (User, error) {
	u, ok := idx.GetByUsername(username)
	if !ok {
		return User{}, apperr.New(apperr.Auth, "unknown username")
	}
	if !VerifyPassword(u, password) {
		return User{}, apperr.New(apperr.Auth, "incorrect password")
	}
	return u, nil
}

// Close releases the underlying log file handle.
func (idx *Index) Close() error { return idx.store.Close() }

// Codec is the storelog Codec for users. Diff emits only the changed
// username/passwordSalt/passwordHash fields and Apply sets whichever of
// those are present; id and creationDate never change through an update.
type Codec struct{}

var _ storelog.Codec[User] = Codec{}

func (Codec) ValueType() string { return "user" }

func (Codec) Marshal(u User) (map[string]any, error) {
	return map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"passwordSalt": u.PasswordSalt,
		"passwordHash": u.PasswordHash,
		"creationDate": u.CreationDate,
	}, nil
}

func (Codec) Unmarshal(fields map[string]any) (User, error) {
	id, ok := fields["id"].(string)
	if !ok {
		return User{}, apperr.New(apperr.RecordShape, "user missing id")
	}
	username, ok := fields["username"].(string)
	if !ok {
		return User{}, apperr.New(apperr.RecordShape, "user missing username")
	}
	salt, ok := fields["passwordSalt"].(string)
	if !ok {
		return User{}, apperr.New(apperr.RecordShape, "user missing passwordSalt")
	}
	hash, ok := fields["passwordHash"].(string)
	if !ok {
		return User{}, apperr.New(apperr.RecordShape, "user missing passwordHash")
	}
	creationDate, ok := fields["creationDate"].(float64)
	if !ok {
		return User{}, apperr.New(apperr.RecordShape, "user missing creationDate")
	}
	for k := range fields {
		switch k {
		case "id", "username", "passwordSalt", "passwordHash", "creationDate":
		default:
			return User{}, apperr.New(apperr.RecordShape, fmt.Sprintf("unknown user field %q", k))
		}
	}
	return User{
		ID:           id,
		Username:     username,
		PasswordSalt: salt,
		PasswordHash: hash,
		CreationDate: int64(creationDate),
	}, nil
}

func (Codec) Diff(old, new User) (map[string]any, error) {
	diff := map[string]any{}
	if old.Username != new.Username {
		diff["username"] = new.Username
	}
	if old.PasswordSalt != new.PasswordSalt {
		diff["passwordSalt"] = new.PasswordSalt
	}
	if old.PasswordHash != new.PasswordHash {
		diff["passwordHash"] = new.PasswordHash
	}
	return diff, nil
}

func (Codec) Apply(base User, fields map[string]any) (User, error) {
	if v, ok := fields["username"]; ok {
		s, ok := v.(string)
		if !ok {
			return User{}, apperr.New(apperr.RecordShape, "username must be a string")
		}
		base.Username = s
	}
	if v, ok := fields["passwordSalt"]; ok {
		s, ok := v.(string)
		if !ok {
			return User{}, apperr.New(apperr.RecordShape, "passwordSalt must be a string")
		}
		base.PasswordSalt = s
	}
	if v, ok := fields["passwordHash"]; ok {
		s, ok := v.(string)
		if !ok {
			return User{}, apperr.New(apperr.RecordShape, "passwordHash must be a string")
		}
		base.PasswordHash = s
	}
	return base, nil
}
