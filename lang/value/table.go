package value

// Table is an open-addressed hash table keyed by interned-string identity,
// with linear probing and tombstone-based deletion, per spec section 4.4.
// It is grounded directly on _examples/original_source/vm/src/table.cpp: no
// example Go library (including the pack's dolthub/swiss, used elsewhere in
// this repo for the VM's globals) exposes the tombstone-observable,
// identity-keyed probing sequence the spec's testable properties require, so
// this one component is hand-rolled against the spec rather than grounded on
// a third-party Go library. See DESIGN.md.
type Table struct {
	entries []entry
	count   int // live entries plus tombstones; the load factor is computed from it
}

type entry struct {
	key   *ObjString // nil for an empty or tombstone slot
	value Value      // Nil for empty, False for tombstone
}

const tableMaxLoad = 0.75

// Len returns the number of occupied slots: live entries plus the tombstones
// left by Delete (tombstones are dropped when the table grows).
func (t *Table) Len() int { return t.count }

// Get returns the value associated with key, if present.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 {
		return Nil, false
	}
	idx := t.findSlot(key)
	e := &t.entries[idx]
	if e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set associates key with v, growing the backing array first if needed. It
// returns true if key was not already present.
func (t *Table) Set(key *ObjString, v Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow(growCapacity(len(t.entries)))
	}

	idx := t.findSlot(key)
	e := &t.entries[idx]
	isNew := e.key == nil
	if isNew && e.value.IsNil() {
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete removes key, turning its slot into a tombstone, and reports
// whether a key was actually removed.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}
	idx := t.findSlot(key)
	e := &t.entries[idx]
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = False // tombstone marker, per spec section 4.4
	return true
}

// AddAll copies every live entry of other into t.
func (t *Table) AddAll(other *Table) {
	for _, e := range other.entries {
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by its raw bytes and hash, walking
// the probe chain and comparing hash then content; it is used only by the
// VM's string interning path (spec section 4.4, "find_by_string").
func (t *Table) FindString(s string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if e.value.IsNil() {
				return nil // empty, not a tombstone: stop
			}
			// tombstone: keep probing
		} else if e.key.Hash == hash && e.key.Chars == s {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// Keys returns every live key; the GC's intern-table sweep iterates over it.
func (t *Table) Keys() []*ObjString {
	keys := make([]*ObjString, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Entry is one (key, value) pair returned by Table.Entries.
type Entry struct {
	Key   *ObjString
	Value Value
}

// Entries returns every live (key, value) pair.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			out = append(out, Entry{e.key, e.value})
		}
	}
	return out
}

// findSlot returns the index of the first slot matching key by reference
// identity, or the first reusable slot (a tombstone seen earlier in the
// chain is preferred over the empty slot that ends it), per spec section 4.4.
func (t *Table) findSlot(key *ObjString) uint32 {
	mask := uint32(len(t.entries) - 1)
	idx := key.Hash & mask
	tombstone := -1
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if e.value.IsNil() {
				// empty slot
				if tombstone >= 0 {
					return uint32(tombstone)
				}
				return idx
			}
			// tombstone
			if tombstone < 0 {
				tombstone = int(idx)
			}
		} else if e.key == key {
			return idx
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) grow(newCap int) {
	old := t.entries
	t.entries = make([]entry, newCap)
	for i := range t.entries {
		t.entries[i] = entry{value: Nil}
	}
	t.count = 0
	for _, e := range old {
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// growCapacity returns the next backing-array size: 8 from empty, doubling
// thereafter, matching spec section 3's "power of two (>= 8)" invariant.
func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}
