package storage

import (
	"fmt"
	"sync"

	"github.com/voxstore/voxdb/internal/tbjson"
)

// SecondaryIndex is a single-field hash index: field value -> document keys.
// Grounded on docdb/internal/docdb/index.go's sharded version index,
// collapsed to a single map since recovery has no concurrent writers to
// shard against.
type SecondaryIndex struct {
	mu    sync.RWMutex
	field string
	byVal map[string]map[string]struct{}
	keyOf map[string]string // key -> last indexed value, for Remove
}

func NewSecondaryIndex(field string) *SecondaryIndex {
	return &SecondaryIndex{
		field: field,
		byVal: make(map[string]map[string]struct{}),
		keyOf: make(map[string]string),
	}
}

func (si *SecondaryIndex) valueString(doc tbjson.Object) (string, bool) {
	v, ok := doc.Get(si.field)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}

func (si *SecondaryIndex) Add(key string, doc tbjson.Object) {
	val, ok := si.valueString(doc)
	if !ok {
		return
	}

	si.mu.Lock()
	defer si.mu.Unlock()

	if prev, had := si.keyOf[key]; had {
		if set := si.byVal[prev]; set != nil {
			delete(set, key)
		}
	}

	set, ok := si.byVal[val]
	if !ok {
		set = make(map[string]struct{})
		si.byVal[val] = set
	}
	set[key] = struct{}{}
	si.keyOf[key] = val
}

func (si *SecondaryIndex) Remove(key string) {
	si.mu.Lock()
	defer si.mu.Unlock()

	val, ok := si.keyOf[key]
	if !ok {
		return
	}
	if set := si.byVal[val]; set != nil {
		delete(set, key)
	}
	delete(si.keyOf, key)
}

func (si *SecondaryIndex) Clear() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.byVal = make(map[string]map[string]struct{})
	si.keyOf = make(map[string]string)
}

// Lookup returns the set of document keys matching value.
func (si *SecondaryIndex) Lookup(value string) []string {
	si.mu.RLock()
	defer si.mu.RUnlock()

	set := si.byVal[value]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
