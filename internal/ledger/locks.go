package ledger

import (
	"sort"
	"sync"

	"github.com/sudo-init-do/gamevault/internal/models"
)

// lockTable serializes in-process access per wallet. Entries are reference
// counted and dropped when unused so the table does not grow with the user base.
type lockTable struct {
	mu    sync.Mutex
	locks map[models.WalletKey]*walletLock
}

type walletLock struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[models.WalletKey]*walletLock)}
}

// acquire locks keys in sorted order and returns the release func.
// keys must already be sorted and de-duplicated.
func (t *lockTable) acquire(keys []models.WalletKey) func() {
	held := make([]*walletLock, 0, len(keys))
	for _, k := range keys {
		t.mu.Lock()
		l, ok := t.locks[k]
		if !ok {
			l = &walletLock{}
			t.locks[k] = l
		}
		l.refs++
		t.mu.Unlock()

		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			t.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(t.locks, keys[i])
			}
			t.mu.Unlock()
		}
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

// sortKeys returns keys in global lock order without duplicates.
func sortKeys(keys []models.WalletKey) []models.WalletKey {
	out := make([]models.WalletKey, 0, len(keys))
	seen := make(map[models.WalletKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
