package command

import "sync"

// HelpBase is the base name of the built-in help command.
const HelpBase = "help"

// Registry indexes commands by joined base names and by help category.
// Insertion order of keys and of commands inside a key decides match
// priority, so both are kept as ordered slices.
type Registry struct {
	mu         sync.RWMutex
	byName     map[string][]*Command
	keys       []string
	byCategory map[string][]*Command
	categories []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string][]*Command),
		byCategory: make(map[string][]*Command),
	}
}

// Register normalises c and appends it. Duplicates append, they never
// replace an earlier registration.
func (r *Registry) Register(c Command) *Command {
	cmd := &Command{
		BaseNames:       append([]string(nil), c.BaseNames...),
		SubNames:        append([]string(nil), c.SubNames...),
		CategoryNames:   append([]string(nil), c.CategoryNames...),
		AuthorityLabels: append([]string{}, c.AuthorityLabels...),
		Callback:        c.Callback,
	}
	if len(cmd.SubNames) == 0 {
		cmd.SubNames = []string{""}
	}

	key := cmd.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.byName[key] = append(r.byName[key], cmd)

	for _, cat := range cmd.CategoryNames {
		if _, ok := r.byCategory[cat]; !ok {
			r.categories = append(r.categories, cat)
		}
		r.byCategory[cat] = append(r.byCategory[cat], cmd)
	}
	return cmd
}

// Add is the single-name shorthand for Register. An empty sub registers the
// default entry, an empty label restricts the command to administrators.
func (r *Registry) Add(base, sub, category, label string, cb Callback) *Command {
	c := Command{
		BaseNames: []string{base},
		SubNames:  []string{sub},
		Callback:  cb,
	}
	if category != "" {
		c.CategoryNames = []string{category}
	}
	if label != "" {
		c.AuthorityLabels = []string{label}
	}
	return r.Register(c)
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName = make(map[string][]*Command)
	r.keys = nil
	r.byCategory = make(map[string][]*Command)
	r.categories = nil
}

// SetHelpAuthority replaces the labels of the default help entry.
func (r *Registry) SetHelpAuthority(labels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.helpLocked(); c != nil {
		c.AuthorityLabels = append([]string{}, labels...)
	}
}

// HelpCommand returns the default help entry, or nil.
func (r *Registry) HelpCommand() *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.helpLocked()
}

func (r *Registry) helpLocked() *Command {
	for _, c := range r.byName[HelpBase] {
		if c.Sub() == "" {
			return c
		}
	}
	return nil
}

// Keys returns the joined base-name keys in insertion order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.keys...)
}

// ByKey returns the command group registered under a joined key.
func (r *Registry) ByKey(key string) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Command(nil), r.byName[key]...)
}

// Category returns the commands of a help category, ok is false when the
// category is unknown. Lookup is exact.
func (r *Registry) Category(name string) ([]*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds, ok := r.byCategory[name]
	if !ok {
		return nil, false
	}
	return append([]*Command(nil), cmds...), true
}

// Categories returns category labels in insertion order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.categories...)
}

// Len is the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, cmds := range r.byName {
		n += len(cmds)
	}
	return n
}
