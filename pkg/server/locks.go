package server

import (
	"strconv"
	"sync"
)

// keyLocks hands out one mutex per (bucket, key) pair so concurrent
// PUTs to the same key cannot race the upsert-then-grant sequence.
// Entries are reference counted and dropped when idle to keep the map
// from growing with the keyspace.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func slotKey(bucketID int64, name string) string {
	return strconv.FormatInt(bucketID, 10) + "/" + name
}

// acquire locks the mutex for key, creating it on first use.
func (k *keyLocks) acquire(key string) *keyLock {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return l
}

// release unlocks the mutex and removes it from the map once nothing
// else holds a reference.
func (k *keyLocks) release(key string, l *keyLock) {
	l.Unlock()

	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
