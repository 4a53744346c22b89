package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// DefaultWriteRetries is how many times Flush and Close retry a failed write.
	DefaultWriteRetries = 3

	defaultLockTimeout = 2 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
	flushInitialDelay  = 50 * time.Millisecond
	flushMaxInterval   = time.Second
)

// Store is the knowledge store: the sole owner of the persisted Document.
// Every mutation runs under one mutex that is held across the in-memory change
// and the write-through of the whole document.
type Store struct {
	mu              sync.Mutex
	path            string
	doc             *Document
	maxInteractions int
	writeRetries    uint64
	lockTimeout     time.Duration
	now             func() time.Time
	fileLock        *flock.Flock
	dirty           bool
	closed          bool
	writeBlock      error
	logger          zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxInteractions sets the interaction log bound.
func WithMaxInteractions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxInteractions = n
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithWriteRetries sets how many times Flush and Close retry a failed write.
func WithWriteRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.writeRetries = uint64(n)
		}
	}
}

// WithLockTimeout bounds how long Open waits for the document lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Open loads the document at path, creating it if absent. A document that
// cannot be decoded is moved aside to path+".bak" and replaced with an empty
// one. If no backup can be made the file is left untouched and every write
// fails with ErrBackupFailed.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:            path,
		maxInteractions: DefaultMaxInteractions,
		writeRetries:    DefaultWriteRetries,
		lockTimeout:     defaultLockTimeout,
		now:             time.Now,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "knowledge_store").Logger()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	lockPath := path + ".lock"
	s.fileLock = flock.New(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()
	locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquire store lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}

	if err := s.load(); err != nil {
		_ = s.fileLock.Unlock() //nolint:errcheck // already failing
		return nil, err
	}

	s.logger.Info().
		Str("path", path).
		Int("facts", len(s.doc.Facts)).
		Int("interactions", len(s.doc.Interactions)).
		Msg("Knowledge store opened")
	return s, nil
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info().Str("path", s.path).Msg("No knowledge store found, creating a new one")
		s.doc = newDocument()
		return s.persist()
	case err != nil:
		return fmt.Errorf("read knowledge store %s: %w", s.path, err)
	}

	doc, dropped, err := decodeDocument(data)
	if err != nil {
		return s.recoverCorrupt(data, err)
	}
	if dropped > 0 {
		s.logger.Warn().
			Str("path", s.path).
			Int("dropped", dropped).
			Msg("Skipped interactions with an unknown role")
	}
	s.doc = doc
	return nil
}

// recoverCorrupt moves the broken file aside and starts from an empty document.
func (s *Store) recoverCorrupt(data []byte, cause error) error {
	corruption := &CorruptionError{Path: s.path, Err: cause}
	s.doc = newDocument()
	s.doc.Meta[metaRecoveredAt] = s.now().Unix()

	backup, err := s.backUp(data)
	if err != nil {
		s.logger.Error().
			Err(err).
			AnErr("cause", corruption).
			Str("path", s.path).
			Msg("Knowledge store corrupt and could not be backed up, leaving it in place with writes disabled")
		s.writeBlock = fmt.Errorf("%w: %v", ErrBackupFailed, err)
		s.dirty = true
		return nil
	}

	corruption.BackupPath = backup
	s.logger.Warn().
		Err(corruption).
		Str("backup", backup).
		Msg("Knowledge store corrupt, reinitializing empty document")
	s.doc.Meta[metaBackupPath] = backup
	return s.persist()
}

// backUp renames the document to path+".bak", falling back to writing data
// to a timestamped copy when the rename fails.
func (s *Store) backUp(data []byte) (string, error) {
	backup := s.path + ".bak"
	renameErr := os.Rename(s.path, backup)
	if renameErr == nil {
		return backup, nil
	}
	s.logger.Warn().Err(renameErr).Str("path", s.path).Msg("Failed to rename corrupt knowledge store, copying it instead")

	backup = fmt.Sprintf("%s.bak.%d", s.path, s.now().Unix())
	if err := atomicWriteFile(backup, data); err != nil {
		return "", errors.Join(renameErr, err)
	}
	return backup, nil
}

// decodeDocument parses data and fills in missing sections. Interactions with
// an unknown role are dropped and counted.
func decodeDocument(data []byte) (*Document, int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, 0, errors.New("empty document")
	}
	if trimmed[0] != '{' {
		return nil, 0, errors.New("document is not a JSON object")
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, 0, err
	}
	valid := lo.Filter(doc.Interactions, func(it Interaction, _ int) bool { return it.Role.Valid() })
	dropped := len(doc.Interactions) - len(valid)
	doc.Interactions = valid

	if doc.Facts == nil {
		doc.Facts = []Fact{}
	}
	for i := range doc.Facts {
		if doc.Facts[i].Tags == nil {
			doc.Facts[i].Tags = []string{}
		}
	}
	if doc.Interactions == nil {
		doc.Interactions = []Interaction{}
	}
	if doc.Personality == nil {
		doc.Personality = defaultPersonality()
	}
	if doc.Meta == nil {
		doc.Meta = map[string]any{}
	}
	return &doc, dropped, nil
}

// persist writes the document once. Must be called with s.mu held.
func (s *Store) persist() error {
	if s.writeBlock != nil {
		s.dirty = true
		return &WriteError{Path: s.path, Err: s.writeBlock}
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err == nil {
		err = atomicWriteFile(s.path, data)
	}
	if err != nil {
		s.dirty = true
		return &WriteError{Path: s.path, Err: err}
	}
	s.dirty = false
	return nil
}

// persistWithRetry retries persist with exponential backoff. Must be called with s.mu held.
func (s *Store) persistWithRetry() error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = flushInitialDelay
	eb.MaxInterval = flushMaxInterval
	eb.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.persist()
		if errors.Is(err, ErrBackupFailed) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Knowledge store write failed")
		}
		return err
	}, backoff.WithMaxRetries(eb, s.writeRetries))
}

// mutate applies fn under the store lock. fn reports whether it changed the
// document; only changes are written through.
func (s *Store) mutate(op string, fn func(doc *Document) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !fn(s.doc) && !s.dirty {
		return nil
	}
	if err := s.persist(); err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("Knowledge store write-through failed")
		return err
	}
	return nil
}

// AddFact appends a fact stamped with the current time.
func (s *Store) AddFact(key, value string, tags ...string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if strings.TrimSpace(value) == "" {
		return ErrEmptyValue
	}
	fact := Fact{Key: key, Value: value, Tags: make([]string, len(tags))}
	copy(fact.Tags, tags)

	return s.mutate("add_fact", func(doc *Document) bool {
		fact.Timestamp = s.now().Unix()
		doc.Facts = append(doc.Facts, fact)
		return true
	})
}

// Forget removes every fact whose key matches exactly and returns how many were removed.
func (s *Store) Forget(key string) (int, error) {
	removed := 0
	err := s.mutate("forget", func(doc *Document) bool {
		kept := doc.Facts[:0]
		for _, f := range doc.Facts {
			if f.Key == key {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		doc.Facts = kept
		return removed > 0
	})
	return removed, err
}

// ListFacts returns up to limit of the most recently added facts, newest first.
func (s *Store) ListFacts(limit int) []Fact {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return []Fact{}
	}
	facts := s.doc.Facts
	if len(facts) > limit {
		facts = facts[len(facts)-limit:]
	}
	out := make([]Fact, 0, len(facts))
	for i := len(facts) - 1; i >= 0; i-- {
		out = append(out, facts[i].clone())
	}
	return out
}

// FactsByKey returns the facts stored under key, newest first.
func (s *Store) FactsByKey(key string) []Fact {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Fact
	for i := len(s.doc.Facts) - 1; i >= 0; i-- {
		if s.doc.Facts[i].Key == key {
			out = append(out, s.doc.Facts[i].clone())
		}
	}
	return out
}

// AddInteraction appends a turn, dropping the oldest entries past the log bound.
func (s *Store) AddInteraction(role Role, text string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.mutate("add_interaction", func(doc *Document) bool {
		doc.Interactions = append(doc.Interactions, Interaction{
			Timestamp: s.now().Unix(),
			Role:      role,
			Text:      text,
		})
		if over := len(doc.Interactions) - s.maxInteractions; over > 0 {
			doc.Interactions = append([]Interaction(nil), doc.Interactions[over:]...)
		}
		return true
	})
}

// RecentInteractions returns the last n turns, oldest first.
func (s *Store) RecentInteractions(n int) []Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return []Interaction{}
	}
	its := s.doc.Interactions
	if len(its) > n {
		its = its[len(its)-n:]
	}
	out := make([]Interaction, len(its))
	copy(out, its)
	return out
}

// Condense ranks the most frequent tokens of user turns and prepends one
// condensed fact per token (common_1, common_2, ...). Repeated calls prepend
// new batches; use ClearCondensed first for an idempotent result.
func (s *Store) Condense(keepTop int) ([]Fact, error) {
	var batch []Fact
	err := s.mutate("condense", func(doc *Document) bool {
		tokens := topTokens(doc.Interactions, keepTop)
		if len(tokens) == 0 {
			return false
		}
		ts := s.now().Unix()
		batch = make([]Fact, len(tokens))
		for i, tok := range tokens {
			batch[i] = Fact{
				Key:       fmt.Sprintf("common_%d", i+1),
				Value:     tok,
				Tags:      []string{TagCondensed},
				Timestamp: ts,
			}
		}
		facts := make([]Fact, 0, len(batch)+len(doc.Facts))
		facts = append(facts, batch...)
		doc.Facts = append(facts, doc.Facts...)
		return true
	})

	out := make([]Fact, len(batch))
	for i, f := range batch {
		out[i] = f.clone()
	}
	return out, err
}

// PruneInteractions removes every interaction older than cutoff and returns the removed turns.
func (s *Store) PruneInteractions(cutoff time.Time) ([]Interaction, error) {
	var removed []Interaction
	limit := cutoff.Unix()
	err := s.mutate("prune_interactions", func(doc *Document) bool {
		kept := make([]Interaction, 0, len(doc.Interactions))
		for _, it := range doc.Interactions {
			if it.Timestamp < limit {
				removed = append(removed, it)
				continue
			}
			kept = append(kept, it)
		}
		if len(removed) == 0 {
			return false
		}
		doc.Interactions = kept
		return true
	})
	return removed, err
}

// RepairEmptyFacts rewrites facts with a blank value to sentinel in place.
func (s *Store) RepairEmptyFacts(sentinel string) (int, error) {
	repaired := 0
	err := s.mutate("repair_empty_facts", func(doc *Document) bool {
		for i := range doc.Facts {
			if strings.TrimSpace(doc.Facts[i].Value) == "" {
				doc.Facts[i].Value = sentinel
				repaired++
			}
		}
		return repaired > 0
	})
	return repaired, err
}

// ClearCondensed drops every condensed fact.
func (s *Store) ClearCondensed() (int, error) {
	removed := 0
	err := s.mutate("clear_condensed", func(doc *Document) bool {
		kept := doc.Facts[:0]
		for _, f := range doc.Facts {
			if f.HasTag(TagCondensed) {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		doc.Facts = kept
		return removed > 0
	})
	return removed, err
}

// Personality returns a copy of the personality state.
func (s *Store) Personality() Personality {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(Personality, len(s.doc.Personality))
	for k, v := range s.doc.Personality {
		out[k] = v
	}
	return out
}

// SetPersonality stores one personality setting.
func (s *Store) SetPersonality(key, value string) error {
	return s.mutate("set_personality", func(doc *Document) bool {
		if doc.Personality[key] == value {
			return false
		}
		doc.Personality[key] = value
		return true
	})
}

// SetMeta stores a free-form metadata value.
func (s *Store) SetMeta(key string, value any) error {
	return s.mutate("set_meta", func(doc *Document) bool {
		doc.Meta[key] = value
		return true
	})
}

// Meta returns a metadata value.
func (s *Store) Meta(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Meta[key]
	return v, ok
}

// Stats returns document counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Facts:        len(s.doc.Facts),
		Interactions: len(s.doc.Interactions),
	}
	for _, f := range s.doc.Facts {
		if f.HasTag(TagCondensed) {
			st.CondensedFacts++
		}
	}
	return st
}

// Flush forces a write-through, retrying with backoff.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.persistWithRetry(); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Knowledge store flush failed")
		return err
	}
	return nil
}

// Close flushes the document and releases the file lock. A WriteFailure from
// the final flush is returned after the lock is released.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.persistWithRetry()
	if flushErr != nil {
		s.logger.Error().Err(flushErr).Str("path", s.path).Msg("Final knowledge store flush failed")
	}
	if err := s.fileLock.Unlock(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to release knowledge store lock")
	}
	s.logger.Info().Str("path", s.path).Msg("Knowledge store closed")
	return flushErr
}
