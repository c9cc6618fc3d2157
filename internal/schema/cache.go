package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache memoises compiled schemas by the hash of their text. Failures are not
// cached.
type Cache struct {
	entries *cache.Cache
}

// NewCache creates a cache whose entries expire after ttl of disuse.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: cache.New(ttl, 2*ttl)}
}

// Compile returns the cached compilation of text, compiling on a miss.
func (c *Cache) Compile(text string) (*Compiled, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])
	if v, ok := c.entries.Get(key); ok {
		// refresh the expiry on use
		c.entries.SetDefault(key, v)
		return v.(*Compiled), nil
	}
	compiled, err := Compile(text)
	if err != nil {
		return nil, err
	}
	c.entries.SetDefault(key, compiled)
	return compiled, nil
}

// Len reports the number of cached schemas.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}

// CompilerFunc adapts a function to the Compile method set shared with Cache.
type CompilerFunc func(text string) (*Compiled, error)

func (f CompilerFunc) Compile(text string) (*Compiled, error) { return f(text) }

// Direct compiles without caching.
var Direct = CompilerFunc(Compile)
