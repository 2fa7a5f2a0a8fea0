package device

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store holds the canonical set of device records keyed by device ID.
//
// It is the single shared mutable resource in the system: all reads and
// writes from other components go through it. A mutex serialises
// concurrent upserts and removes against the same ID, so racing updates
// from different sources (heartbeat vs. user edit) apply as sequential
// merges, never a torn write.
//
// Identity and configuration fields are written through to an optional
// Repository; runtime state lives only in memory.
//
// All public methods are thread-safe. Returned records are copies;
// callers can safely modify them.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record

	// deleted tracks IDs removed during this process lifetime.
	// A deleted ID is never handed out again by GenerateID, and manual
	// re-registration of one is rejected.
	deleted map[string]struct{}

	repo   Repository // optional persistence, may be nil
	window time.Duration
	now    func() time.Time // injectable clock for tests
	logger Logger
}

// NewStore creates a device store with the given liveness window.
// repo may be nil for a purely in-memory store.
func NewStore(repo Repository, window time.Duration) *Store {
	return &Store{
		records: make(map[string]*Record),
		deleted: make(map[string]struct{}),
		repo:    repo,
		window:  window,
		now:     time.Now,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load populates the store from the repository.
// This should be called once on application startup.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	records, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*Record, len(records))
	for i := range records {
		rec := records[i]
		s.records[rec.ID] = &rec
	}

	s.logger.Info("device registry loaded", "count", len(records))
	return nil
}

// GenerateID returns a new unique device identifier.
// UUIDs guarantee an ID deleted earlier in this process is never reissued.
func GenerateID() string {
	return "tally-" + uuid.NewString()
}

// WasDeleted reports whether the ID was removed during this process lifetime.
func (s *Store) WasDeleted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deleted[id]
	return ok
}

// Upsert merges the partial update into the record with the given ID,
// creating the record if it has not been seen before. It returns a copy
// of the resulting record and whether it was newly created.
//
// Merge semantics: nil fields of the update never erase existing values.
// An authoritative update replaces the record wholesale instead.
func (s *Store) Upsert(ctx context.Context, id string, u Update) (Record, bool) {
	s.mu.Lock()

	rec, exists := s.records[id]
	created := !exists
	if !exists {
		rec = &Record{
			ID:        id,
			IPAddress: UnknownAddress,
			Tally:     TallyIdle,
			CreatedAt: s.now().UTC(),
		}
		s.records[id] = rec
	} else if u.Authoritative {
		fresh := &Record{
			ID:        id,
			IPAddress: UnknownAddress,
			Tally:     TallyIdle,
			CreatedAt: rec.CreatedAt,
		}
		fresh.Heartbeats = rec.Heartbeats
		rec = fresh
		s.records[id] = rec
	}

	applyUpdate(rec, u)
	rec.UpdatedAt = s.now().UTC()
	rec.Online = rec.OnlineAt(s.now(), s.window)

	result := *rec
	s.mu.Unlock()

	// Persist identity/config outside the lock; a slow disk must not
	// stall readers. The repository upsert is idempotent. Two racing
	// identity writes may reach the repository out of order; memory
	// stays authoritative and the next identity write converges the row.
	if s.repo != nil && (created || touchesIdentity(u)) {
		if err := s.repo.Save(ctx, &result); err != nil {
			s.logger.Error("persisting device failed", "device_id", id, "error", err)
		}
	}

	if created {
		s.logger.Info("device registered", "device_id", id, "ip", result.IPAddress)
	}

	return result, created
}

// Get returns a copy of the record, with Online derived lazily at read time.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.RUnlock()
		return Record{}, false
	}
	result := *rec
	s.mu.RUnlock()

	result.Online = result.OnlineAt(s.now(), s.window)
	return result, true
}

// Remove deletes the record. Removing an absent ID is a no-op that leaves
// the store untouched; only an ID that actually existed is tombstoned, so
// deleting a never-registered ID cannot block it from registering later.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	_, existed := s.records[id]
	if existed {
		delete(s.records, id)
		s.deleted[id] = struct{}{}
	}
	s.mu.Unlock()

	if !existed {
		return
	}

	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			s.logger.Error("deleting persisted device failed", "device_id", id, "error", err)
		}
	}

	s.logger.Info("device deleted", "device_id", id)
}

// List returns a snapshot copy of all records. Mutations concurrent with
// iteration of the returned slice are never observed.
func (s *Store) List() []Record {
	now := s.now()

	s.mu.RLock()
	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		cpy := *rec
		cpy.Online = cpy.OnlineAt(now, s.window)
		records = append(records, cpy)
	}
	s.mu.RUnlock()

	return records
}

// Count returns the number of records in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// BySource returns copies of all records assigned to the given OBS source.
func (s *Store) BySource(source string) []Record {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for _, rec := range s.records {
		if rec.AssignedSource == source {
			cpy := *rec
			cpy.Online = cpy.OnlineAt(now, s.window)
			records = append(records, cpy)
		}
	}
	return records
}

// MarkStale flips records from online to offline when LastSeen has aged
// past the liveness window, and returns copies of the flipped records.
// It never marks a device online; only a fresh heartbeat can do that.
func (s *Store) MarkStale() []Record {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []Record
	for _, rec := range s.records {
		if rec.Online && !rec.OnlineAt(now, s.window) {
			rec.Online = false
			flipped = append(flipped, *rec)
		}
	}
	return flipped
}

// applyUpdate merges non-nil update fields into the record.
func applyUpdate(rec *Record, u Update) {
	if u.Name != nil {
		rec.Name = *u.Name
	}
	if u.IPAddress != nil {
		rec.IPAddress = *u.IPAddress
	}
	if u.MACAddress != nil {
		rec.MACAddress = *u.MACAddress
	}
	if u.AssignedSource != nil {
		rec.AssignedSource = *u.AssignedSource
	}
	if u.Tally != nil {
		rec.Tally = *u.Tally
	}
	if u.LastSeen != nil {
		rec.LastSeen = *u.LastSeen
	}
	if u.Firmware != nil {
		rec.Firmware = *u.Firmware
	}
	if u.Model != nil {
		rec.Model = *u.Model
	}
	if u.UptimeMS != nil {
		rec.UptimeMS = *u.UptimeMS
	}
	if u.Heartbeat {
		rec.Heartbeats++
	}
}

// touchesIdentity reports whether the update modifies persisted fields.
func touchesIdentity(u Update) bool {
	return u.Name != nil || u.IPAddress != nil || u.MACAddress != nil ||
		u.AssignedSource != nil || u.Firmware != nil || u.Model != nil
}
