package state

import (
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound reports a lookup for a key that holds no account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists reports a create over an occupied key.
	ErrAccountExists = errors.New("account already exists")
)

// Store is the account backing of the engine. Values are the serialized
// account bytes; entities own their codecs.
type Store interface {
	Get(key solana.PublicKey) ([]byte, error)
	Set(key solana.PublicKey, data []byte)
	Has(key solana.PublicKey) bool
	Delete(key solana.PublicKey)
}

// MemoryStore keeps accounts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey][]byte)}
}

func (m *MemoryStore) Get(key solana.PublicKey) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.accounts[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Set(key solana.PublicKey, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.accounts[key] = cp
}

func (m *MemoryStore) Has(key solana.PublicKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[key]
	return ok
}

func (m *MemoryStore) Delete(key solana.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, key)
}

// Stage is a write overlay over a base store. Reads fall through to the base
// until a key is written; nothing reaches the base until Commit. Dropping a
// Stage without committing discards every write, which is how an operation
// stays all-or-nothing.
type Stage struct {
	base    Store
	pending map[solana.PublicKey]*stagedAccount
}

type stagedAccount struct {
	data    []byte
	deleted bool
}

func NewStage(base Store) *Stage {
	return &Stage{base: base, pending: make(map[solana.PublicKey]*stagedAccount)}
}

func (s *Stage) Get(key solana.PublicKey) ([]byte, error) {
	if acc, ok := s.pending[key]; ok {
		if acc.deleted {
			return nil, ErrAccountNotFound
		}
		out := make([]byte, len(acc.data))
		copy(out, acc.data)
		return out, nil
	}
	return s.base.Get(key)
}

func (s *Stage) Set(key solana.PublicKey, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.pending[key] = &stagedAccount{data: cp}
}

func (s *Stage) Has(key solana.PublicKey) bool {
	if acc, ok := s.pending[key]; ok {
		return !acc.deleted
	}
	return s.base.Has(key)
}

func (s *Stage) Delete(key solana.PublicKey) {
	s.pending[key] = &stagedAccount{deleted: true}
}

// Account is any entity that serializes itself under its derived address.
type Account interface {
	Key() solana.PublicKey
	Marshal() ([]byte, error)
}

// Save serializes acc into the store under its own key.
func Save(s Store, acc Account) error {
	data, err := acc.Marshal()
	if err != nil {
		return err
	}
	s.Set(acc.Key(), data)
	return nil
}

// Load reads the account at key and decodes it into into.
func Load(s Store, key solana.PublicKey, into interface{ Unmarshal([]byte) error }) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return into.Unmarshal(data)
}

// Commit flushes every staged write into the base store.
func (s *Stage) Commit() {
	for key, acc := range s.pending {
		if acc.deleted {
			s.base.Delete(key)
		} else {
			s.base.Set(key, acc.data)
		}
	}
	s.pending = make(map[solana.PublicKey]*stagedAccount)
}
