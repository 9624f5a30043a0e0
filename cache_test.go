package mongocache

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/drgatoxd/mongo-cache/idlock"
	"github.com/drgatoxd/mongo-cache/mirror"
	"github.com/drgatoxd/mongo-cache/store"
	"github.com/drgatoxd/mongo-cache/store/memory"
)

type addr struct {
	City string `json:"city"`
	Zip  string `json:"zip,omitempty"`
}

type user struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
	Age  int    `json:"age,omitempty"`
	Addr *addr  `json:"addr,omitempty"`
}

func (u user) EntityID() string { return u.ID }

// countingStore wraps the in-memory store, counts calls per operation and can be
// switched into failing mode.
type countingStore struct {
	*memory.Store[user]
	mu    sync.Mutex
	calls map[string]int
	fail  error
}

var _ store.Store[user] = (*countingStore)(nil)

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New[user](memory.Options[user]{}), calls: make(map[string]int)}
}

func (s *countingStore) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.fail
}

func (s *countingStore) count(ops ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range ops {
		n += s.calls[op]
	}
	return n
}

func (s *countingStore) reads() int {
	return s.count("FetchByID", "FetchOne", "FetchAll", "FetchMany")
}

func (s *countingStore) writes() int {
	return s.count("Insert", "Persist", "DeleteOne", "DeleteMany")
}

func (s *countingStore) reset() {
	s.mu.Lock()
	s.calls = make(map[string]int)
	s.mu.Unlock()
}

func (s *countingStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// seed writes directly to the backing store without counting.
func (s *countingStore) seed(t *testing.T, us ...user) {
	t.Helper()
	for _, u := range us {
		if err := s.Store.Persist(context.Background(), u); err != nil {
			t.Fatalf("seed %q: %v", u.ID, err)
		}
	}
}

func (s *countingStore) FetchByID(ctx context.Context, id string) (user, bool, error) {
	if err := s.hit("FetchByID"); err != nil {
		return user{}, false, err
	}
	return s.Store.FetchByID(ctx, id)
}

func (s *countingStore) FetchOne(ctx context.Context, q store.Query) (user, bool, error) {
	if err := s.hit("FetchOne"); err != nil {
		return user{}, false, err
	}
	return s.Store.FetchOne(ctx, q)
}

func (s *countingStore) FetchAll(ctx context.Context) ([]user, error) {
	if err := s.hit("FetchAll"); err != nil {
		return nil, err
	}
	return s.Store.FetchAll(ctx)
}

func (s *countingStore) FetchMany(ctx context.Context, q store.Query) ([]user, error) {
	if err := s.hit("FetchMany"); err != nil {
		return nil, err
	}
	return s.Store.FetchMany(ctx, q)
}

func (s *countingStore) Insert(ctx context.Context, data store.Query) (user, error) {
	if err := s.hit("Insert"); err != nil {
		return user{}, err
	}
	return s.Store.Insert(ctx, data)
}

func (s *countingStore) Persist(ctx context.Context, u user) error {
	if err := s.hit("Persist"); err != nil {
		return err
	}
	return s.Store.Persist(ctx, u)
}

func (s *countingStore) DeleteOne(ctx context.Context, id string) error {
	if err := s.hit("DeleteOne"); err != nil {
		return err
	}
	return s.Store.DeleteOne(ctx, id)
}

func (s *countingStore) DeleteMany(ctx context.Context, q store.Query) error {
	if err := s.hit("DeleteMany"); err != nil {
		return err
	}
	return s.Store.DeleteMany(ctx, q)
}

type recordingHooks struct {
	mu       sync.Mutex
	hits     int
	misses   int
	created  []string
	resyncs  int
	evicted  int
	mirrErrs []error
}

func (h *recordingHooks) MirrorHit(string, string) {
	h.mu.Lock()
	h.hits++
	h.mu.Unlock()
}

func (h *recordingHooks) MirrorMiss(string, string) {
	h.mu.Lock()
	h.misses++
	h.mu.Unlock()
}

func (h *recordingHooks) Created(_ string, id string) {
	h.mu.Lock()
	h.created = append(h.created, id)
	h.mu.Unlock()
}

func (h *recordingHooks) Resynced(string, int, int) {
	h.mu.Lock()
	h.resyncs++
	h.mu.Unlock()
}

func (h *recordingHooks) Evicted(_ string, n int) {
	h.mu.Lock()
	h.evicted += n
	h.mu.Unlock()
}

func (h *recordingHooks) MirrorError(_ string, err error) {
	h.mu.Lock()
	h.mirrErrs = append(h.mirrErrs, err)
	h.mu.Unlock()
}

func newTestCache(t *testing.T, s store.Store[user], optsOpt func(*Options[user])) Cache[user] {
	t.Helper()
	opts := Options[user]{
		Namespace: "users",
		Store:     s,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[user](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

func mustImpl[M Entity](t *testing.T, c Cache[M]) *cache[M] {
	t.Helper()
	impl, ok := c.(*cache[M])
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func mirrorIDs(c Cache[user]) []string {
	vals, _ := c.All(context.Background())
	ids := make([]string, len(vals))
	for i, u := range vals {
		ids[i] = u.ID
	}
	sort.Strings(ids)
	return ids
}

// ==============================
// Construction
// ==============================

func TestNewValidation(t *testing.T) {
	s := newCountingStore()
	if _, err := New[user](Options[user]{Namespace: "users"}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New[user](Options[user]{Store: s}); err == nil {
		t.Fatalf("expected error without namespace")
	}
	if _, err := New[user](Options[user]{Namespace: "users", Store: s, Reconcile: ReconcileMode(42)}); err == nil {
		t.Fatalf("expected error for unknown reconcile mode")
	}

	cc := newTestCache(t, s, nil)
	impl := mustImpl(t, cc)
	if _, ok := impl.mirror.(*mirror.Map[user]); !ok {
		t.Fatalf("default mirror should be *mirror.Map, got %T", impl.mirror)
	}
	if !cc.Enabled() {
		t.Fatalf("cache should be enabled by default")
	}
}

// ==============================
// Point lookups
// ==============================

// TestGetMirrorHitShortCircuit: the first Get loads and mirrors, the second
// answers without touching the store.
func TestGetMirrorHitShortCircuit(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a", Name: "x"})
	h := &recordingHooks{}
	cc := newTestCache(t, s, func(o *Options[user]) { o.Hooks = h })

	got, ok, err := cc.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	want := user{ID: "a", Name: "x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}
	if _, ok := cc.Peek("a"); !ok {
		t.Fatalf("mirror should contain a after Get")
	}

	s.reset()
	again, ok, err := cc.Get(ctx, "a")
	if err != nil || !ok || !reflect.DeepEqual(again, want) {
		t.Fatalf("second Get: ok=%v err=%v got=%+v", ok, err, again)
	}
	if n := s.reads() + s.writes(); n != 0 {
		t.Fatalf("second Get issued %d store calls, want 0", n)
	}
	if h.hits != 1 || h.misses != 1 {
		t.Fatalf("hooks hits=%d misses=%d, want 1/1", h.hits, h.misses)
	}
}

func TestGetOrCreateOnMiss(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	h := &recordingHooks{}
	cc := newTestCache(t, s, func(o *Options[user]) { o.Hooks = h })

	got, err := cc.GetOrCreate(ctx, "z")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !reflect.DeepEqual(got, user{ID: "z"}) {
		t.Fatalf("GetOrCreate = %+v, want {_id:z}", got)
	}
	if n := s.count("Insert"); n != 1 {
		t.Fatalf("Insert calls = %d, want 1", n)
	}
	if n := s.count("Persist"); n != 1 {
		t.Fatalf("Persist calls = %d, want 1", n)
	}
	if m, ok := cc.Peek("z"); !ok || m.ID != "z" {
		t.Fatalf("mirror missing z: ok=%v m=%+v", ok, m)
	}
	if stored, ok, _ := s.Store.FetchByID(ctx, "z"); !ok || stored.ID != "z" {
		t.Fatalf("store missing z: ok=%v", ok)
	}
	if len(h.created) != 1 || h.created[0] != "z" {
		t.Fatalf("Created hook = %v", h.created)
	}

	// existing id: no further writes
	s.reset()
	if _, err := cc.GetOrCreate(ctx, "z"); err != nil {
		t.Fatalf("GetOrCreate existing: %v", err)
	}
	if s.writes() != 0 || s.reads() != 0 {
		t.Fatalf("GetOrCreate on mirrored id touched store: reads=%d writes=%d", s.reads(), s.writes())
	}
}

func TestGetNoCreateOnMiss(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	cc := newTestCache(t, s, nil)

	if got, ok, err := cc.Get(ctx, "nope"); err != nil || ok {
		t.Fatalf("Get miss expected, got ok=%v err=%v val=%+v", ok, err, got)
	}
	if s.writes() != 0 {
		t.Fatalf("Get miss issued %d writes", s.writes())
	}
	if cc.Len() != 0 {
		t.Fatalf("mirror should stay empty, len=%d", cc.Len())
	}
}

func TestGetOrCreateSerializedByLocker(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	cc := newTestCache(t, s, func(o *Options[user]) { o.Locker = idlock.NewLocal() })

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := cc.GetOrCreate(ctx, "race")
			if err == nil && u.ID != "race" {
				err = errors.New("wrong id " + u.ID)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}
	if n := s.count("Insert"); n != 1 {
		t.Fatalf("Insert calls = %d, want 1", n)
	}
}

func TestFindAlwaysConsultsStore(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a", Name: "x"}, user{ID: "b", Name: "y"})
	cc := newTestCache(t, s, nil)

	if _, _, err := cc.Get(ctx, "b"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	// store changes behind the mirror's back
	s.seed(t, user{ID: "b", Name: "y", Age: 40})
	s.reset()

	got, ok, err := cc.Find(ctx, Query{"name": "y"})
	if err != nil || !ok || got.Age != 40 {
		t.Fatalf("Find: ok=%v err=%v got=%+v", ok, err, got)
	}
	if s.count("FetchOne") != 1 {
		t.Fatalf("Find should call FetchOne once")
	}
	if m, _ := cc.Peek("b"); m.Age != 40 {
		t.Fatalf("Find should overwrite mirror entry, got %+v", m)
	}

	if _, ok, err := cc.Find(ctx, Query{"name": "none"}); err != nil || ok {
		t.Fatalf("Find miss: ok=%v err=%v", ok, err)
	}
	if s.writes() != 0 {
		t.Fatalf("Find issued writes")
	}
}

func TestFindOrCreateSeedsFromQuery(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	cc := newTestCache(t, s, nil)

	got, err := cc.FindOrCreate(ctx, Query{"name": "ada", "age": 36})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if got.ID == "" || got.Name != "ada" || got.Age != 36 {
		t.Fatalf("FindOrCreate created %+v", got)
	}
	if _, ok := cc.Peek(got.ID); !ok {
		t.Fatalf("created document not mirrored")
	}

	s.reset()
	again, err := cc.FindOrCreate(ctx, Query{"name": "ada"})
	if err != nil || again.ID != got.ID {
		t.Fatalf("FindOrCreate existing: err=%v got=%+v", err, again)
	}
	if s.count("Insert") != 0 {
		t.Fatalf("FindOrCreate on existing match inserted")
	}
}

// ==============================
// Collections & reconciliation
// ==============================

// TestFetchAllReconcileCount covers both branches of the size heuristic. Equal
// sizes keep a mirror whose contents differ from the store.
func TestFetchAllReconcileCount(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a"}, user{ID: "b"})
	h := &recordingHooks{}
	cc := newTestCache(t, s, func(o *Options[user]) { o.Hooks = h })

	for _, id := range []string{"a", "b"} {
		if _, _, err := cc.Get(ctx, id); err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
	}

	// same size, different ids
	if err := s.Store.DeleteOne(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	s.seed(t, user{ID: "c"})
	res, err := cc.FetchAll(ctx)
	if err != nil || len(res) != 2 {
		t.Fatalf("FetchAll: n=%d err=%v", len(res), err)
	}
	if got := mirrorIDs(cc); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("equal-size fetch should keep mirror, got %v", got)
	}
	if h.resyncs != 0 {
		t.Fatalf("unexpected resync")
	}

	// size differs => mirror equals the result
	s.seed(t, user{ID: "d", Name: "dee"})
	res, err = cc.FetchAll(ctx)
	if err != nil || len(res) != 3 {
		t.Fatalf("FetchAll: n=%d err=%v", len(res), err)
	}
	if got := mirrorIDs(cc); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Fatalf("mirror after resync = %v", got)
	}
	if m, _ := cc.Peek("d"); m.Name != "dee" {
		t.Fatalf("resynced content mismatch: %+v", m)
	}
	if h.resyncs != 1 {
		t.Fatalf("resyncs = %d, want 1", h.resyncs)
	}
}

func TestFetchFilterReconcileModes(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		mode ReconcileMode
		want []string
	}{
		{"count keeps equal size", ReconcileCount, []string{"a"}},
		{"ids detects swap", ReconcileIDs, []string{"b"}},
		{"always resyncs", ReconcileAlways, []string{"b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newCountingStore()
			s.seed(t, user{ID: "a", Name: "x"}, user{ID: "b", Name: "y"})
			cc := newTestCache(t, s, func(o *Options[user]) { o.Reconcile = tc.mode })
			if _, _, err := cc.Get(ctx, "a"); err != nil {
				t.Fatal(err)
			}
			res, err := cc.FetchFilter(ctx, Query{"name": "y"})
			if err != nil || len(res) != 1 || res[0].ID != "b" {
				t.Fatalf("FetchFilter: err=%v res=%+v", err, res)
			}
			if got := mirrorIDs(cc); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("mirror = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestReloadAlwaysReplacesMirror(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a"})
	cc := newTestCache(t, s, nil)
	if _, _, err := cc.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	s.seed(t, user{ID: "a", Name: "fresh"})

	if _, err := cc.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m, _ := cc.Peek("a"); m.Name != "fresh" {
		t.Fatalf("Reload kept stale entry %+v", m)
	}
}

func TestFilterLocalOnly(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t,
		user{ID: "a", Name: "x", Age: 30, Addr: &addr{City: "Oslo", Zip: "0150"}},
		user{ID: "b", Name: "x", Age: 31, Addr: &addr{City: "Bergen"}},
		user{ID: "c", Name: "y", Age: 30},
	)
	cc := newTestCache(t, s, nil)
	for _, id := range []string{"a", "b"} {
		if _, _, err := cc.Get(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	s.reset()

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"empty matches all", Query{}, []string{"a", "b"}},
		{"single field", Query{"name": "x"}, []string{"a", "b"}},
		{"two fields", Query{"name": "x", "age": 30}, []string{"a"}},
		{"nested partial", Query{"addr": Query{"city": "Bergen"}}, []string{"b"}},
		{"unmirrored store match is invisible", Query{"name": "y"}, []string{}},
		{"no match", Query{"age": 99}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := cc.Filter(ctx, tc.q)
			if err != nil {
				t.Fatalf("Filter: %v", err)
			}
			ids := make([]string, 0, len(res))
			for _, u := range res {
				ids = append(ids, u.ID)
			}
			sort.Strings(ids)
			if !reflect.DeepEqual(ids, tc.want) {
				t.Fatalf("Filter(%v) = %v, want %v", tc.q, ids, tc.want)
			}
		})
	}
	if n := s.reads() + s.writes(); n != 0 {
		t.Fatalf("Filter touched the store %d times", n)
	}
}

func TestFilterMatchesOmittedZeroValues(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t,
		user{ID: "a", Name: "x"},
		user{ID: "b", Name: "x", Age: 3, Addr: &addr{City: "Bergen"}},
	)
	cc := newTestCache(t, s, nil)
	if _, err := cc.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"zero number", Query{"age": 0}, []string{"a"}},
		{"zero string", Query{"name": "x", "age": 0}, []string{"a"}},
		{"omitted nested field", Query{"addr": Query{"zip": ""}}, []string{"a", "b"}},
		{"nil", Query{"addr": nil}, []string{"a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := cc.Filter(ctx, tc.q)
			if err != nil {
				t.Fatalf("Filter: %v", err)
			}
			ids := make([]string, 0, len(res))
			for _, u := range res {
				ids = append(ids, u.ID)
			}
			sort.Strings(ids)
			if !reflect.DeepEqual(ids, tc.want) {
				t.Fatalf("Filter(%v) = %v, want %v", tc.q, ids, tc.want)
			}
		})
	}

	if err := cc.DeleteWhere(ctx, Query{"age": 0}); err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if _, ok := cc.Peek("a"); ok {
		t.Fatalf("a should be evicted")
	}
	if _, ok, _ := s.Store.FetchByID(ctx, "a"); ok {
		t.Fatalf("a should be deleted from the store")
	}
	if cc.Len() != 1 {
		t.Fatalf("Len=%d want 1", cc.Len())
	}
}

// ==============================
// Writes
// ==============================

func TestUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a", Name: "x", Age: 30, Addr: &addr{City: "Oslo"}})
	cc := newTestCache(t, s, nil)

	ok, err := cc.Update(ctx, "a", Query{"name": "y"})
	if err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}
	want := user{ID: "a", Name: "y", Age: 30, Addr: &addr{City: "Oslo"}}
	if m, _ := cc.Peek("a"); !reflect.DeepEqual(m, want) {
		t.Fatalf("mirror = %+v, want %+v", m, want)
	}
	if stored, _, _ := s.Store.FetchByID(ctx, "a"); !reflect.DeepEqual(stored, want) {
		t.Fatalf("store = %+v, want %+v", stored, want)
	}
	if s.count("Persist") != 1 {
		t.Fatalf("Persist calls = %d, want 1", s.count("Persist"))
	}

	// nested objects are replaced whole
	if _, err := cc.Update(ctx, "a", Query{"addr": Query{"zip": "0150"}}); err != nil {
		t.Fatalf("Update nested: %v", err)
	}
	if m, _ := cc.Peek("a"); m.Addr == nil || m.Addr.City != "" || m.Addr.Zip != "0150" {
		t.Fatalf("shallow merge expected, got %+v", m.Addr)
	}
}

type secretDoc struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Secret string `json:"-"`
	hidden int
}

func (d secretDoc) EntityID() string { return d.ID }

func TestUpdateKeepsFieldsOutsideTheDocument(t *testing.T) {
	ctx := context.Background()
	s := memory.New[secretDoc](memory.Options[secretDoc]{})
	if err := s.Persist(ctx, secretDoc{ID: "a", Name: "x", Secret: "s3cr3t", hidden: 7}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	c, err := New[secretDoc](Options[secretDoc]{Namespace: "secrets", Store: s})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := c.Update(ctx, "a", Query{"name": "y"})
	if err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}
	want := secretDoc{ID: "a", Name: "y", Secret: "s3cr3t", hidden: 7}
	if stored, _, _ := s.FetchByID(ctx, "a"); stored != want {
		t.Fatalf("store = %+v, want %+v", stored, want)
	}
	if m, _ := c.Peek("a"); m != want {
		t.Fatalf("mirror = %+v, want %+v", m, want)
	}
}

func TestUpdateMissingNoWrite(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	cc := newTestCache(t, s, nil)

	ok, err := cc.Update(ctx, "ghost", Query{"name": "y"})
	if err != nil || ok {
		t.Fatalf("Update missing: ok=%v err=%v", ok, err)
	}
	if s.writes() != 0 {
		t.Fatalf("Update missing wrote %d times", s.writes())
	}
}

func TestUpdateRejectsIDChange(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a"})
	cc := newTestCache(t, s, nil)

	if _, err := cc.Update(ctx, "a", Query{"_id": "b"}); !errors.Is(err, ErrIDChange) {
		t.Fatalf("expected ErrIDChange, got %v", err)
	}
	if ok, err := cc.Update(ctx, "a", Query{"_id": "a", "name": "same"}); err != nil || !ok {
		t.Fatalf("Update with unchanged _id: ok=%v err=%v", ok, err)
	}
}

func TestCreateMirrors(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	cc := newTestCache(t, s, nil)

	u, err := cc.Create(ctx, Query{"_id": "n1", "name": "new"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m, ok := cc.Peek("n1"); !ok || !reflect.DeepEqual(m, u) {
		t.Fatalf("mirror = %+v ok=%v", m, ok)
	}
	if _, err := cc.Create(ctx, Query{"_id": "n1"}); !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	gen, err := cc.Create(ctx, Query{"name": "anon"})
	if err != nil || gen.ID == "" {
		t.Fatalf("Create without id: err=%v u=%+v", err, gen)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a"})
	cc := newTestCache(t, s, nil)
	if _, _, err := cc.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := cc.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete #%d: %v", i+1, err)
		}
	}
	if err := cc.Delete(ctx, "never"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	if _, ok := cc.Peek("a"); ok {
		t.Fatalf("a still mirrored")
	}
	if _, ok, _ := s.Store.FetchByID(ctx, "a"); ok {
		t.Fatalf("a still stored")
	}
}

func TestDeleteAllClearsBoth(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a"}, user{ID: "b"})
	cc := newTestCache(t, s, nil)
	if _, err := cc.FetchAll(ctx); err != nil {
		t.Fatal(err)
	}

	if err := cc.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if cc.Len() != 0 || s.Store.Len() != 0 {
		t.Fatalf("DeleteAll left mirror=%d store=%d", cc.Len(), s.Store.Len())
	}
}

func TestDeleteWhereEvictsMirroredMatches(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a", Name: "x"}, user{ID: "b", Name: "x"}, user{ID: "c", Name: "y"})
	h := &recordingHooks{}
	cc := newTestCache(t, s, func(o *Options[user]) { o.Hooks = h })
	for _, id := range []string{"a", "c"} {
		if _, _, err := cc.Get(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	if err := cc.DeleteWhere(ctx, Query{"name": "x"}); err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if got := mirrorIDs(cc); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("mirror = %v, want [c]", got)
	}
	if s.Store.Len() != 1 {
		t.Fatalf("store len = %d, want 1", s.Store.Len())
	}
	if h.evicted != 1 {
		t.Fatalf("evicted = %d, want 1", h.evicted)
	}
}

// ==============================
// Failure handling
// ==============================

func TestStoreErrorsLeaveMirrorUntouched(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := newCountingStore()
	s.seed(t, user{ID: "a", Name: "x"})
	cc := newTestCache(t, s, nil)
	if _, _, err := cc.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	s.setFail(boom)

	if _, _, err := cc.Get(ctx, "missing"); !errors.Is(err, boom) {
		t.Fatalf("Get: want boom, got %v", err)
	}
	if _, err := cc.GetOrCreate(ctx, "missing"); !errors.Is(err, boom) {
		t.Fatalf("GetOrCreate: want boom, got %v", err)
	}
	if _, err := cc.FetchAll(ctx); !errors.Is(err, boom) {
		t.Fatalf("FetchAll: want boom, got %v", err)
	}
	if ok, err := cc.Update(ctx, "a", Query{"name": "y"}); !errors.Is(err, boom) || ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}
	if err := cc.Delete(ctx, "a"); !errors.Is(err, boom) {
		t.Fatalf("Delete: want boom, got %v", err)
	}
	if err := cc.DeleteAll(ctx); !errors.Is(err, boom) {
		t.Fatalf("DeleteAll: want boom, got %v", err)
	}
	if err := cc.DeleteWhere(ctx, Query{"name": "x"}); !errors.Is(err, boom) {
		t.Fatalf("DeleteWhere: want boom, got %v", err)
	}

	m, ok := cc.Peek("a")
	if !ok || !reflect.DeepEqual(m, user{ID: "a", Name: "x"}) {
		t.Fatalf("mirror changed after failures: ok=%v m=%+v", ok, m)
	}
	if cc.Len() != 1 {
		t.Fatalf("mirror len = %d, want 1", cc.Len())
	}
}

type failingMirror struct {
	*mirror.Map[user]
	err error
}

func (f failingMirror) Set(string, user) error { return f.err }

func TestMirrorErrorsAreReportedNotReturned(t *testing.T) {
	ctx := context.Background()
	full := errors.New("full")
	s := newCountingStore()
	s.seed(t, user{ID: "a"})
	h := &recordingHooks{}
	cc := newTestCache(t, s, func(o *Options[user]) {
		o.Mirror = failingMirror{Map: mirror.NewMap[user](), err: full}
		o.Hooks = h
	})

	if _, ok, err := cc.Get(ctx, "a"); err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(h.mirrErrs) != 1 {
		t.Fatalf("mirror errors = %d, want 1", len(h.mirrErrs))
	}
	var merr *MirrorError
	if !errors.As(h.mirrErrs[0], &merr) || merr.ID != "a" || !errors.Is(merr, full) {
		t.Fatalf("unexpected mirror error %v", h.mirrErrs[0])
	}
}

func TestDisabledAlwaysReadsStore(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a"})
	cc := newTestCache(t, s, func(o *Options[user]) { o.Disabled = true })
	if cc.Enabled() {
		t.Fatalf("Enabled should be false")
	}

	for i := 0; i < 3; i++ {
		if _, ok, err := cc.Get(ctx, "a"); err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
	}
	if n := s.count("FetchByID"); n != 3 {
		t.Fatalf("FetchByID calls = %d, want 3", n)
	}
	if cc.Len() != 0 {
		t.Fatalf("disabled cache mirrored %d entries", cc.Len())
	}
}

type closingMirror struct {
	*mirror.Map[user]
	closed bool
}

func (c *closingMirror) Close() error { c.closed = true; return nil }

func TestCloseReleasesMirror(t *testing.T) {
	m := &closingMirror{Map: mirror.NewMap[user]()}
	cc := newTestCache(t, newCountingStore(), func(o *Options[user]) { o.Mirror = m })
	if err := cc.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !m.closed {
		t.Fatalf("mirror not closed")
	}
}

func TestEvictAndPurge(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.seed(t, user{ID: "a"}, user{ID: "b"})
	cc := newTestCache(t, s, nil)
	if _, err := cc.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	cc.Evict("a")
	if _, ok := cc.Peek("a"); ok {
		t.Fatalf("a still mirrored after Evict")
	}
	cc.Purge()
	if cc.Len() != 0 {
		t.Fatalf("Purge left %d entries", cc.Len())
	}
	if s.Store.Len() != 2 {
		t.Fatalf("mirror helpers touched the store")
	}
}
