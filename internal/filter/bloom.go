package filter

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// KeyFilter wraps a bloom filter over known association keys with
// thread-safety. A negative answer is definitive and lets the redirect
// path skip the database; a positive answer may be a false positive and
// must still be confirmed by the store. Deleted keys are not removed, so
// a stale positive simply falls through to a database miss.
type KeyFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewKeyFilter creates a filter sized for the given capacity and false
// positive rate.
func NewKeyFilter(capacity uint, fpRate float64) *KeyFilter {
	return &KeyFilter{
		filter: bloom.NewWithEstimates(capacity, fpRate),
	}
}

// Add records a key.
func (f *KeyFilter) Add(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(key)
}

// MayExist reports whether the key might be known. False means the key
// definitely has no Association.
func (f *KeyFilter) MayExist(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(key)
}

// AddBatch records many keys, used to warm the filter at startup.
func (f *KeyFilter) AddBatch(keys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		f.filter.AddString(key)
	}
}
