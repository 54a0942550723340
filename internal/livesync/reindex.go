package livesync

import (
	"fmt"
	"sync"
)

// Placement is the (container, position) pair an item ends up at after a
// structural change. Only this pair is persisted for a move; siblings keep
// their stored indexes and rely on the list query's secondary ordering.
type Placement struct {
	Container string
	Position  int
}

// PositionedItem pairs an item id with its dense position inside a
// container.
type PositionedItem struct {
	ID       string
	Position int
}

// PositionedCollection maintains ordered containers of item ids with dense
// 0..n-1 positions, recomputed on every insert, move, or removal. It backs
// the kanban board's local drag and drop state.
type PositionedCollection struct {
	mu         sync.Mutex
	containers map[string][]string
	location   map[string]string
}

// NewPositionedCollection constructs an empty collection.
func NewPositionedCollection() *PositionedCollection {
	return &PositionedCollection{
		containers: make(map[string][]string),
		location:   make(map[string]string),
	}
}

// Load replaces the container's contents with ids in display order.
func (c *PositionedCollection) Load(container string, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.containers[container] {
		delete(c.location, id)
	}
	ordered := make([]string, len(ids))
	copy(ordered, ids)
	c.containers[container] = ordered
	for _, id := range ordered {
		c.location[id] = container
	}
}

// Items returns the container's items with their dense positions.
func (c *PositionedCollection) Items(container string) []PositionedItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.containers[container]
	items := make([]PositionedItem, len(ids))
	for position, id := range ids {
		items[position] = PositionedItem{ID: id, Position: position}
	}
	return items
}

// ContainerOf returns the container currently holding the item.
func (c *PositionedCollection) ContainerOf(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	container, ok := c.location[id]
	return container, ok
}

// Insert places the item into the container at index, clamped to
// [0, length]. Inserting an item already held elsewhere moves it.
func (c *PositionedCollection) Insert(container, id string, index int) Placement {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.location[id]; ok {
		c.removeLocked(current, id)
	}
	return c.insertLocked(container, id, index)
}

// Remove deletes the item and closes the gap in its container.
func (c *PositionedCollection) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	container, ok := c.location[id]
	if !ok {
		return false
	}
	c.removeLocked(container, id)
	return true
}

// Move relocates the item from one container to another at toIndex,
// renumbering both containers contiguously. A move within a single
// container is one renumbering pass, not two.
func (c *PositionedCollection) Move(id, from, to string, toIndex int) (Placement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.location[id]
	if !ok || current != from {
		return Placement{}, fmt.Errorf("move %q from %q: %w", id, from, ErrNotFound)
	}

	c.removeLocked(from, id)
	return c.insertLocked(to, id, toIndex), nil
}

func (c *PositionedCollection) insertLocked(container, id string, index int) Placement {
	ids := c.containers[container]
	if index < 0 {
		index = 0
	}
	if index > len(ids) {
		index = len(ids)
	}
	ids = append(ids, "")
	copy(ids[index+1:], ids[index:])
	ids[index] = id
	c.containers[container] = ids
	c.location[id] = container
	return Placement{Container: container, Position: index}
}

func (c *PositionedCollection) removeLocked(container, id string) {
	ids := c.containers[container]
	for position, candidate := range ids {
		if candidate == id {
			c.containers[container] = append(ids[:position], ids[position+1:]...)
			break
		}
	}
	delete(c.location, id)
	if len(c.containers[container]) == 0 {
		delete(c.containers, container)
	}
}
