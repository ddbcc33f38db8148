package datastore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Document is a JSON object. Numbers decode as float64.
type Document = map[string]any

// IDField is filled with a random id on insert when the document has none.
const IDField = "_id"

type UpdateOptions struct {
	// Upsert inserts a document built from the query when nothing matches.
	Upsert bool
	// Multi updates every match instead of the first one.
	Multi bool
}

// Session is the handle passed to a Store.Session callback. Collections are
// named per group: collection "history" in group "core" lives in
// core.history.json.
type Session struct {
	id    uuid.UUID
	db    *database
	group string

	mu    sync.Mutex
	valid bool
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) GuildID() string { return s.db.id }

func (s *Session) invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

func (s *Session) collection(name string) (*collection, error) {
	s.mu.Lock()
	valid := s.valid
	s.mu.Unlock()
	if !valid {
		return nil, ErrBadSession
	}
	if !validName(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	return s.db.collection(s.group + "." + name)
}

// Insert adds doc, which may be any JSON encodable value producing an object,
// and returns the stored document.
func (s *Session) Insert(coll string, doc any) (Document, error) {
	c, err := s.collection(coll)
	if err != nil {
		return nil, err
	}
	d, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := d[IDField]; !ok {
		d[IDField] = uuid.NewString()
	}

	docs := append(append([]Document(nil), c.docs...), d)
	if err := c.commit(docs); err != nil {
		return nil, err
	}
	return clone(d), nil
}

// Find returns copies of all documents matching query in insertion order.
// A nil query matches everything.
func (s *Session) Find(coll string, query Document) ([]Document, error) {
	c, err := s.collection(coll)
	if err != nil {
		return nil, err
	}
	q, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	var out []Document
	for _, d := range c.docs {
		if matches(d, q) {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func (s *Session) FindOne(coll string, query Document) (Document, bool, error) {
	c, err := s.collection(coll)
	if err != nil {
		return nil, false, err
	}
	q, err := normalizeQuery(query)
	if err != nil {
		return nil, false, err
	}

	for _, d := range c.docs {
		if matches(d, q) {
			return clone(d), true, nil
		}
	}
	return nil, false, nil
}

func (s *Session) Count(coll string, query Document) (int, error) {
	c, err := s.collection(coll)
	if err != nil {
		return 0, err
	}
	q, err := normalizeQuery(query)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range c.docs {
		if matches(d, q) {
			n++
		}
	}
	return n, nil
}

// Update applies update to the first match, or every match with opts.Multi,
// and returns how many documents changed or were inserted.
func (s *Session) Update(coll string, query, update Document, opts UpdateOptions) (int, error) {
	c, err := s.collection(coll)
	if err != nil {
		return 0, err
	}
	q, err := normalizeQuery(query)
	if err != nil {
		return 0, err
	}
	ops, err := splitUpdate(update)
	if err != nil {
		return 0, err
	}

	docs := append([]Document(nil), c.docs...)
	n := 0
	for i, d := range docs {
		if !matches(d, q) {
			continue
		}
		updated := clone(d)
		if err := ops.apply(updated); err != nil {
			return 0, err
		}
		docs[i] = updated
		n++
		if !opts.Multi {
			break
		}
	}

	if n == 0 && opts.Upsert {
		d := Document{}
		for k, v := range q {
			d[k] = v
		}
		if err := ops.apply(d); err != nil {
			return 0, err
		}
		if _, ok := d[IDField]; !ok {
			d[IDField] = uuid.NewString()
		}
		docs = append(docs, d)
		n = 1
	}

	if n == 0 {
		return 0, nil
	}
	if err := c.commit(docs); err != nil {
		return 0, err
	}
	return n, nil
}

// Remove deletes the first match, or every match when multi is set.
func (s *Session) Remove(coll string, query Document, multi bool) (int, error) {
	c, err := s.collection(coll)
	if err != nil {
		return 0, err
	}
	q, err := normalizeQuery(query)
	if err != nil {
		return 0, err
	}

	docs := make([]Document, 0, len(c.docs))
	n := 0
	for _, d := range c.docs {
		if (multi || n == 0) && matches(d, q) {
			n++
			continue
		}
		docs = append(docs, d)
	}

	if n == 0 {
		return 0, nil
	}
	if err := c.commit(docs); err != nil {
		return 0, err
	}
	return n, nil
}

// Drop deletes the collection and its file.
func (s *Session) Drop(coll string) error {
	c, err := s.collection(coll)
	if err != nil {
		return err
	}
	if err := removeFile(c.file); err != nil {
		return err
	}
	s.db.forget(s.group + "." + coll)
	return nil
}

// Decode converts documents into typed values through JSON.
func Decode(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *collection) commit(docs []Document) error {
	prev := c.docs
	c.docs = docs
	if err := c.save(); err != nil {
		c.docs = prev
		return err
	}
	return nil
}
