// Package util provides supporting data structures for the database: the
// keyed deadline heap backing the expiry index and a size histogram used for
// statistics reporting.
//
// The KeyHeap combines a binary heap with a hash map to provide both
// efficient deadline-ordered operations and key-based access:
//
//   - O(log n) for deadline operations (push, pop, update)
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// This implementation is not thread-safe; callers hold the database lock.
package util

import (
	"container/heap"
)

// Item represents one expiry row: a key and its deadline
type Item struct {
	Key      string // The entry key
	Deadline int64  // Unix nanoseconds; orders the heap
	index    int    // Index in the heap, maintained by heap package
}

// KeyHeap is a deadline-ordered priority queue with key-based access.
// Ties on the deadline are broken by key order so iteration is
// deterministic.
type KeyHeap struct {
	items    []*Item
	itemsMap map[string]*Item
}

// NewKeyHeap creates an empty heap
func NewKeyHeap() *KeyHeap {
	return &KeyHeap{
		items:    make([]*Item, 0),
		itemsMap: make(map[string]*Item),
	}
}

// Len returns the number of rows (part of heap.Interface)
func (kh *KeyHeap) Len() int { return len(kh.items) }

// Less orders by deadline, then by key (part of heap.Interface)
func (kh *KeyHeap) Less(i, j int) bool {
	if kh.items[i].Deadline != kh.items[j].Deadline {
		return kh.items[i].Deadline < kh.items[j].Deadline
	}
	return kh.items[i].Key < kh.items[j].Key
}

// Swap exchanges rows at positions i and j (part of heap.Interface)
func (kh *KeyHeap) Swap(i, j int) {
	kh.items[i], kh.items[j] = kh.items[j], kh.items[i]
	kh.items[i].index = i
	kh.items[j].index = j
}

// Push adds a row to the heap (part of heap.Interface)
func (kh *KeyHeap) Push(x interface{}) {
	n := len(kh.items)
	item := x.(*Item)
	item.index = n
	kh.items = append(kh.items, item)
	kh.itemsMap[item.Key] = item
}

// Pop removes and returns the earliest row (part of heap.Interface)
func (kh *KeyHeap) Pop() interface{} {
	old := kh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	kh.items = old[:n-1]
	delete(kh.itemsMap, item.Key)
	return item
}

// AddItem inserts a row or updates the deadline of an existing one
func (kh *KeyHeap) AddItem(key string, deadline int64) {
	if item, exists := kh.itemsMap[key]; exists {
		item.Deadline = deadline
		heap.Fix(kh, item.index)
		return
	}

	heap.Push(kh, &Item{
		Key:      key,
		Deadline: deadline,
	})
}

// RemoveByKey removes the row for key, returning its deadline
func (kh *KeyHeap) RemoveByKey(key string) (int64, bool) {
	item, exists := kh.itemsMap[key]
	if !exists {
		return 0, false
	}

	heap.Remove(kh, item.index)
	return item.Deadline, true
}

// PopItem removes and returns the earliest row
func (kh *KeyHeap) PopItem() (*Item, bool) {
	if len(kh.items) == 0 {
		return nil, false
	}
	return heap.Pop(kh).(*Item), true
}

// Peek returns the earliest row without removing it
func (kh *KeyHeap) Peek() (*Item, bool) {
	if len(kh.items) == 0 {
		return nil, false
	}
	return kh.items[0], true
}

// Contains checks if a key has a row in the heap
func (kh *KeyHeap) Contains(key string) bool {
	_, exists := kh.itemsMap[key]
	return exists
}
