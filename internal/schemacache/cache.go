// Package schemacache is the process-resident mapping from action name to
// a compiled JSON-Schema validator (spec.md §4.2, component C2). It is
// populated lazily by the Publisher and never invalidated at runtime:
// changing an action's schema requires a process restart.
package schemacache

import (
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Cache holds one compiled validator per action name.
type Cache struct {
	mu         sync.RWMutex
	validators map[string]*gojsonschema.Schema
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{validators: make(map[string]*gojsonschema.Schema)}
}

// Get returns the compiled validator for action, compiling and caching it
// from schemaDoc on first use. Concurrent first-insert is tolerated: two
// goroutines racing to compile the same action's schema both succeed and
// either compiled validator may end up cached, since both are equivalent.
func (c *Cache) Get(action, schemaDoc string) (*gojsonschema.Schema, error) {
	c.mu.RLock()
	schema, ok := c.validators[action]
	c.mu.RUnlock()

	if ok {
		return schema, nil
	}

	loader := gojsonschema.NewStringLoader(schemaDoc)

	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.validators[action] = compiled
	c.mu.Unlock()

	return compiled, nil
}

// Validate compiles (or reuses) the validator for action and checks payload
// against it, returning the list of validation error descriptions (empty
// when payload conforms).
func (c *Cache) Validate(action, schemaDoc, payload string) ([]string, error) {
	schema, err := c.Get(action, schemaDoc)
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, err
	}

	if result.Valid() {
		return nil, nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}

	return details, nil
}
