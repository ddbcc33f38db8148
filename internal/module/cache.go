package module

import "sync"

// Cache is a per-guild property bag owned by one module. It is not persisted.
type Cache struct {
	mu     sync.RWMutex
	guilds map[string]map[string]any
}

func NewCache() *Cache {
	return &Cache{guilds: make(map[string]map[string]any)}
}

// Get returns the stored value or nil.
func (c *Cache) Get(guildID, key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guilds[guildID][key]
}

// Set stores value under key. A nil value removes the key.
func (c *Cache) Set(guildID, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bag, ok := c.guilds[guildID]
	if value == nil {
		if ok {
			delete(bag, key)
		}
		return
	}
	if !ok {
		bag = make(map[string]any)
		c.guilds[guildID] = bag
	}
	bag[key] = value
}
