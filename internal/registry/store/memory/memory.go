// Package memory is an in-process registry backend. Transactions are serialized by a
// single lock and run against a copy of the state that replaces it on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"registry/internal/registry/models"
	"registry/internal/registry/query"
	"registry/internal/registry/store"
	dErrors "registry/pkg/domain-errors"
	"registry/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// Store is the in-memory backend.
type Store struct {
	mu      sync.Mutex
	state   *state
	timeout time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTxTimeout bounds transactions started without a deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{state: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// RunInTx runs fn with exclusive access to a copy of the state. The copy becomes the
// state only if fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	working := s.state.clone()
	if err := fn(&tx{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

type state struct {
	persons    map[string]*models.Person
	identities map[int64]*models.Identity
	nextKey    int64
}

func newState() *state {
	return &state{persons: map[string]*models.Person{}, identities: map[int64]*models.Identity{}, nextKey: 1}
}

func (st *state) clone() *state {
	c := &state{
		persons:    make(map[string]*models.Person, len(st.persons)),
		identities: make(map[int64]*models.Identity, len(st.identities)),
		nextKey:    st.nextKey,
	}
	for k, p := range st.persons {
		pc := *p
		c.persons[k] = &pc
	}
	// Identities are copied on write, so sharing pointers here is safe.
	for k, i := range st.identities {
		c.identities[k] = i
	}
	return c
}

func (st *state) byKey() []*models.Identity {
	out := make([]*models.Identity, 0, len(st.identities))
	for _, i := range st.identities {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

type tx struct {
	st *state
}

func (t *tx) FindPerson(_ context.Context, personID string) (*models.Person, error) {
	p, ok := t.st.persons[personID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (t *tx) CreatePerson(_ context.Context, p *models.Person) error {
	if _, ok := t.st.persons[p.ID]; ok {
		return fmt.Errorf("person %s: %w", p.ID, sentinel.ErrConflict)
	}
	c := *p
	t.st.persons[p.ID] = &c
	return nil
}

func (t *tx) UpdatePerson(_ context.Context, p *models.Person) error {
	if _, ok := t.st.persons[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *p
	t.st.persons[p.ID] = &c
	return nil
}

func (t *tx) DeletePerson(_ context.Context, personID string) error {
	if _, ok := t.st.persons[personID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(t.st.persons, personID)
	for k, i := range t.st.identities {
		if i.PersonID == personID {
			delete(t.st.identities, k)
		}
	}
	return nil
}

func (t *tx) ListIdentities(_ context.Context, personID string) ([]*models.Identity, error) {
	var out []*models.Identity
	for _, i := range t.st.identities {
		if i.PersonID == personID {
			out = append(out, i.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Position != out[b].Position {
			return out[a].Position < out[b].Position
		}
		return out[a].Key < out[b].Key
	})
	return out, nil
}

func (t *tx) FindIdentity(_ context.Context, personID, identityID string) (*models.Identity, error) {
	if i := t.lookup(personID, identityID); i != nil {
		return i.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (t *tx) lookup(personID, identityID string) *models.Identity {
	for _, i := range t.st.identities {
		if i.PersonID == personID && i.IdentityID == identityID {
			return i
		}
	}
	return nil
}

func (t *tx) InsertIdentity(_ context.Context, i *models.Identity) error {
	if _, ok := t.st.persons[i.PersonID]; !ok {
		return fmt.Errorf("person %s: %w", i.PersonID, sentinel.ErrNotFound)
	}
	if t.lookup(i.PersonID, i.IdentityID) != nil {
		return fmt.Errorf("identity %s/%s: %w", i.PersonID, i.IdentityID, sentinel.ErrConflict)
	}
	i.Key = t.st.nextKey
	t.st.nextKey++
	t.st.identities[i.Key] = i.Clone()
	return nil
}

func (t *tx) ReplaceIdentity(_ context.Context, i *models.Identity) error {
	if _, ok := t.st.identities[i.Key]; !ok {
		return sentinel.ErrNotFound
	}
	if other := t.lookup(i.PersonID, i.IdentityID); other != nil && other.Key != i.Key {
		return fmt.Errorf("identity %s/%s: %w", i.PersonID, i.IdentityID, sentinel.ErrConflict)
	}
	t.st.identities[i.Key] = i.Clone()
	return nil
}

func (t *tx) UpdateIdentityState(_ context.Context, i *models.Identity) error {
	cur, ok := t.st.identities[i.Key]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.PersonID != i.PersonID {
		if _, ok := t.st.persons[i.PersonID]; !ok {
			return fmt.Errorf("person %s: %w", i.PersonID, sentinel.ErrNotFound)
		}
		if t.lookup(i.PersonID, cur.IdentityID) != nil {
			return fmt.Errorf("identity %s/%s: %w", i.PersonID, cur.IdentityID, sentinel.ErrConflict)
		}
	}
	c := cur.Clone()
	c.PersonID = i.PersonID
	c.Position = i.Position
	c.Status = i.Status
	c.IsReference = i.IsReference
	t.st.identities[i.Key] = c
	return nil
}

func (t *tx) DeleteIdentity(_ context.Context, personID, identityID string) error {
	i := t.lookup(personID, identityID)
	if i == nil {
		return sentinel.ErrNotFound
	}
	delete(t.st.identities, i.Key)
	return nil
}

func (t *tx) Select(_ context.Context, plan *query.Plan) ([]query.Row, error) {
	return plan.Apply(t.st.byKey()), nil
}

func (t *tx) Galleries(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	names := []string{}
	for _, i := range t.st.identities {
		for _, g := range i.Galleries {
			if !seen[g] {
				seen[g] = true
				names = append(names, g)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (t *tx) GalleryMembers(_ context.Context, gallery string, offset, limit int) ([]query.Row, error) {
	rows := []query.Row{}
	skipped := 0
	for _, i := range t.st.byKey() {
		if !i.InGallery(gallery) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		rows = append(rows, query.Row{PersonID: i.PersonID, IdentityID: i.IdentityID})
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (t *tx) GalleryExists(_ context.Context, gallery string) (bool, error) {
	for _, i := range t.st.identities {
		if i.InGallery(gallery) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) Counts(_ context.Context) (store.Counts, error) {
	c := store.Counts{Persons: int64(len(t.st.persons)), Identities: int64(len(t.st.identities))}
	for _, i := range t.st.identities {
		c.BiometricData += int64(len(i.BiometricData))
	}
	return c, nil
}
