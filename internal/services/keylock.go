package services

import (
	"slices"
	"sync"
)

// keyLocker serializes work per key. Entries are dropped once no goroutine
// holds or waits for them.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: map[string]*keyLock{}}
}

// Lock acquires every key in sorted order and returns the release func.
// Duplicate keys are locked once.
func (k *keyLocker) Lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyLock, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

// size reports the number of live keys.
func (k *keyLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func groupKey(id string) string       { return "group:" + id }
func transactionKey(id string) string { return "tx:" + id }
func materializationKey(templateID, competency string) string {
	return "tpl:" + templateID + ":" + competency
}
