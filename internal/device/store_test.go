package device

import (
	"context"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Record
	saveErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Record)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		cpy := *d
		return &cpy, nil
	}
	return nil, ErrNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]Record, 0, len(m.devices))
	for _, d := range m.devices {
		records = append(records, *d)
	}
	return records, nil
}

func (m *MockRepository) Save(_ context.Context, rec *Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *rec
	m.devices[rec.ID] = &cpy
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	return nil
}

func strPtr(s string) *string          { return &s }
func tallyPtr(t TallyState) *TallyState { return &t }
func timePtr(t time.Time) *time.Time   { return &t }

const testWindow = 30 * time.Second

func newTestStore() *Store {
	return NewStore(NewMockRepository(), testWindow)
}

func TestUpsert_CreatesRecord(t *testing.T) {
	s := newTestStore()

	rec, created := s.Upsert(context.Background(), "esp32-001", Update{})
	if !created {
		t.Error("expected created = true for unseen id")
	}
	if rec.ID != "esp32-001" {
		t.Errorf("ID = %q, want %q", rec.ID, "esp32-001")
	}
	if rec.IPAddress != UnknownAddress {
		t.Errorf("IPAddress = %q, want %q", rec.IPAddress, UnknownAddress)
	}
	if rec.Online {
		t.Error("new record with no heartbeat must be offline")
	}
	if rec.Tally != TallyIdle {
		t.Errorf("Tally = %q, want idle", rec.Tally)
	}
}

func TestUpsert_MergesDisjointFields(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	// Apply disjoint updates in both orders; final record must equal the
	// field-wise union either way.
	updates := []Update{
		{Name: strPtr("Camera 1")},
		{IPAddress: strPtr("192.168.1.50")},
		{AssignedSource: strPtr("Cam 1")},
	}

	s.Upsert(ctx, "a", updates[0])
	s.Upsert(ctx, "a", updates[1])
	s.Upsert(ctx, "a", updates[2])

	s.Upsert(ctx, "b", updates[2])
	s.Upsert(ctx, "b", updates[0])
	s.Upsert(ctx, "b", updates[1])

	recA, _ := s.Get("a")
	recB, _ := s.Get("b")

	for _, rec := range []Record{recA, recB} {
		if rec.Name != "Camera 1" || rec.IPAddress != "192.168.1.50" || rec.AssignedSource != "Cam 1" {
			t.Errorf("merged record = %+v, want union of all three updates", rec)
		}
	}
}

func TestUpsert_PartialUpdateNeverErases(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Upsert(ctx, "esp32-001", Update{
		Name:      strPtr("Camera 1"),
		IPAddress: strPtr("192.168.1.50"),
	})
	s.Upsert(ctx, "esp32-001", Update{Name: strPtr("Camera One")})

	rec, _ := s.Get("esp32-001")
	if rec.IPAddress != "192.168.1.50" {
		t.Errorf("IPAddress = %q, partial update must not erase it", rec.IPAddress)
	}
	if rec.Name != "Camera One" {
		t.Errorf("Name = %q, want updated name", rec.Name)
	}
}

func TestUpsert_AuthoritativeReplaces(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Upsert(ctx, "esp32-001", Update{
		Name:           strPtr("Camera 1"),
		AssignedSource: strPtr("Cam 1"),
	})
	s.Upsert(ctx, "esp32-001", Update{
		Name:          strPtr("Replaced"),
		Authoritative: true,
	})

	rec, _ := s.Get("esp32-001")
	if rec.Name != "Replaced" {
		t.Errorf("Name = %q, want %q", rec.Name, "Replaced")
	}
	if rec.AssignedSource != "" {
		t.Errorf("AssignedSource = %q, authoritative update must reset unspecified fields", rec.AssignedSource)
	}
}

func TestHeartbeat_MarksOnlineImmediately(t *testing.T) {
	s := newTestStore()
	ts := time.Now().UTC()

	rec, _ := s.Upsert(context.Background(), "esp32-001", Update{
		IPAddress: strPtr("192.168.1.50"),
		LastSeen:  timePtr(ts),
		Heartbeat: true,
	})

	if !rec.Online {
		t.Error("device with fresh heartbeat must be online")
	}
	if !rec.LastSeen.Equal(ts) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, ts)
	}
	if rec.IPAddress != "192.168.1.50" {
		t.Errorf("IPAddress = %q, want heartbeat address", rec.IPAddress)
	}
	if rec.Heartbeats != 1 {
		t.Errorf("Heartbeats = %d, want 1", rec.Heartbeats)
	}
}

func TestGet_DerivesOnlineLazily(t *testing.T) {
	s := newTestStore()
	now := time.Now()

	s.Upsert(context.Background(), "esp32-001", Update{
		LastSeen: timePtr(now.Add(-10 * time.Second)),
	})

	rec, ok := s.Get("esp32-001")
	if !ok {
		t.Fatal("expected record")
	}
	if !rec.Online {
		t.Error("record seen 10s ago must be online (window 30s)")
	}

	// Advance the clock past the window; no sweep has run, but a read
	// must still derive offline.
	s.now = func() time.Time { return now.Add(45 * time.Second) }

	rec, _ = s.Get("esp32-001")
	if rec.Online {
		t.Error("record seen 45s ago must derive offline on read")
	}
}

func TestRemove_Idempotent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	before := s.Count()
	s.Remove(ctx, "never-existed") // must not panic or error
	if s.Count() != before {
		t.Error("removing an absent id must leave the store unchanged")
	}

	s.Upsert(ctx, "esp32-001", Update{})
	s.Remove(ctx, "esp32-001")
	s.Remove(ctx, "esp32-001") // second remove is a no-op

	if _, ok := s.Get("esp32-001"); ok {
		t.Error("removed record still present")
	}
	if !s.WasDeleted("esp32-001") {
		t.Error("removed id must be tombstoned")
	}
}

func TestRemove_AbsentIDIsNotTombstoned(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Remove(ctx, "esp32-009")
	if s.WasDeleted("esp32-009") {
		t.Fatal("removing a never-registered id must not tombstone it")
	}

	rec, created := s.Upsert(ctx, "esp32-009", Update{Name: strPtr("Camera 9")})
	if !created {
		t.Error("registration after a no-op remove should create the record")
	}
	if rec.Name != "Camera 9" {
		t.Errorf("Name = %q, want Camera 9", rec.Name)
	}
}

func TestList_SnapshotSemantics(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Upsert(ctx, "esp32-001", Update{Name: strPtr("Camera 1")})
	s.Upsert(ctx, "esp32-002", Update{Name: strPtr("Camera 2")})

	snapshot := s.List()
	if len(snapshot) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(snapshot))
	}

	// Mutating the store after the snapshot must not affect it.
	s.Upsert(ctx, "esp32-001", Update{Name: strPtr("Changed")})
	s.Remove(ctx, "esp32-002")

	for _, rec := range snapshot {
		if rec.Name != "Camera 1" && rec.Name != "Camera 2" {
			t.Errorf("snapshot observed concurrent mutation: %+v", rec)
		}
	}
}

func TestMarkStale_FlipsOnlyOnlineRecords(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	now := time.Now()

	// Online record about to go stale.
	s.Upsert(ctx, "stale", Update{LastSeen: timePtr(now)})
	// Record that was never online.
	s.Upsert(ctx, "neverseen", Update{})
	// Fresh record.
	s.Upsert(ctx, "fresh", Update{LastSeen: timePtr(now.Add(40 * time.Second))})

	s.now = func() time.Time { return now.Add(45 * time.Second) }

	flipped := s.MarkStale()
	if len(flipped) != 1 || flipped[0].ID != "stale" {
		t.Fatalf("MarkStale() = %v, want exactly the stale record", flipped)
	}
	if flipped[0].Online {
		t.Error("flipped record must report offline")
	}

	// A second sweep finds nothing new.
	if again := s.MarkStale(); len(again) != 0 {
		t.Errorf("second MarkStale() = %v, want none", again)
	}
}

func TestBySource(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Upsert(ctx, "a", Update{AssignedSource: strPtr("Cam 1")})
	s.Upsert(ctx, "b", Update{AssignedSource: strPtr("Cam 1")})
	s.Upsert(ctx, "c", Update{AssignedSource: strPtr("Cam 2")})

	matches := s.BySource("Cam 1")
	if len(matches) != 2 {
		t.Errorf("BySource(Cam 1) returned %d records, want 2", len(matches))
	}
}

func TestUpsert_ConcurrentSameKey(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Upsert(ctx, "esp32-001", Update{Heartbeat: true})
			}
		}()
	}
	wg.Wait()

	rec, _ := s.Get("esp32-001")
	if rec.Heartbeats != writers*50 {
		t.Errorf("Heartbeats = %d, want %d (no torn writes)", rec.Heartbeats, writers*50)
	}
}

func TestLoad_PopulatesFromRepository(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["esp32-001"] = &Record{
		ID:        "esp32-001",
		Name:      "Camera 1",
		IPAddress: "192.168.1.50",
	}

	s := NewStore(repo, testWindow)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	rec, ok := s.Get("esp32-001")
	if !ok {
		t.Fatal("expected persisted record after Load")
	}
	if rec.Online {
		t.Error("record loaded from persistence must start offline")
	}
}

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if seen[id] {
			t.Fatalf("GenerateID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}
