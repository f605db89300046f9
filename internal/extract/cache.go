package extract

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 128

// RuleCache keeps compiled rules per source revision so a batch touching
// many rows of one source compiles its patterns once.
type RuleCache struct {
	cache *lru.Cache[string, *Rules]
}

// NewRuleCache creates a cache holding up to size rule sets
func NewRuleCache(size int) *RuleCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, *Rules](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &RuleCache{cache: c}
}

// Get returns the compiled rules of a source revision, compiling on a miss.
// Compilation errors are not cached.
func (c *RuleCache) Get(sourceID int64, updatedAt time.Time, amount, amountBackup, payee, payeeBackup string) (*Rules, error) {
	key := fmt.Sprintf("%d@%d", sourceID, updatedAt.UnixNano())
	if rules, ok := c.cache.Get(key); ok {
		return rules, nil
	}

	rules, err := CompileRules(amount, amountBackup, payee, payeeBackup)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, rules)
	return rules, nil
}

// Len returns the number of cached rule sets
func (c *RuleCache) Len() int {
	return c.cache.Len()
}
