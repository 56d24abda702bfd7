// Package payload parses the optional attrs side payload of event rows on
// demand. Parsed payloads are memoized by row identity and payload text and
// never invalidated.
package payload

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spaolacci/murmur3"

	"github.com/arkilian/drilldown/pkg/types"
)

// Key is the 128-bit murmur3 hash of a row's identity.
type Key struct {
	H1, H2 uint64
}

// KeyOf hashes the identity of row together with its raw payload. Each
// part is length-prefixed so that separators inside values cannot make two
// rows collide.
func KeyOf(row types.EventRow) Key {
	h := murmur3.New128()
	for _, part := range []string{
		row.UserID,
		row.TS.UTC().Format(time.RFC3339Nano),
		row.SKUID,
		row.EventType,
		row.Attrs,
	} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	h1, h2 := h.Sum128()
	return Key{H1: h1, H2: h2}
}

// PathRecorder receives every JSONPath evaluated against a payload.
// *observability.QueryStats satisfies it.
type PathRecorder interface {
	RecordJSONPath(path string)
}

type entry struct {
	once  sync.Once
	value map[string]interface{}
	err   error
}

// Cache memoizes parsed payloads. It is safe for concurrent use; each
// payload is parsed at most once even under concurrent first access.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	paths   PathRecorder

	pathMu sync.RWMutex
	exprs  map[string]jp.Expr
}

// NewCache returns an empty cache. paths may be nil.
func NewCache(paths PathRecorder) *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		paths:   paths,
		exprs:   make(map[string]jp.Expr),
	}
}

// Get returns the parsed payload of row. A row without a payload yields a
// nil map and no error. Parse failures are memoized alongside successes.
func (c *Cache) Get(row types.EventRow) (map[string]interface{}, error) {
	if row.Attrs == "" {
		return nil, nil
	}
	key := KeyOf(row)

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = parse(row.Attrs)
	})
	return e.value, e.err
}

// Loader returns a deferred Get for row, suitable as an expression
// environment's attrs loader.
func (c *Cache) Loader(row types.EventRow) func() (map[string]interface{}, error) {
	return func() (map[string]interface{}, error) {
		return c.Get(row)
	}
}

// Lookup evaluates a JSONPath such as "$.price" against the payload of row
// and returns every match. A row without a payload has no matches.
func (c *Cache) Lookup(row types.EventRow, path string) ([]interface{}, error) {
	x, err := c.compilePath(path)
	if err != nil {
		return nil, err
	}
	if c.paths != nil {
		c.paths.RecordJSONPath(path)
	}
	data, err := c.Get(row)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []interface{}{}, nil
	}
	return x.Get(data), nil
}

// Len returns the number of memoized payloads.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) compilePath(path string) (jp.Expr, error) {
	c.pathMu.RLock()
	x, ok := c.exprs[path]
	c.pathMu.RUnlock()
	if ok {
		return x, nil
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("payload: invalid path %q: %w", path, err)
	}
	c.pathMu.Lock()
	c.exprs[path] = x
	c.pathMu.Unlock()
	return x, nil
}

// parse decodes a payload that must be a JSON object.
func parse(raw string) (map[string]interface{}, error) {
	data, err := oj.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("payload: parse attrs: %w", err)
	}
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("payload: attrs is %T, not an object", data)
	}
	return obj, nil
}
