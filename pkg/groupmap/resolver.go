package groupmap

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/prism/pkg/version"
)

// Resolver maps a concrete runtime to the id of the group that serves it.
// Lookups are memoized in an LRU cache since the same few runtimes account
// for most traffic.
type Resolver struct {
	groups *GroupMap
	cache  *lru.Cache[RuntimeTarget, string]
}

// NewResolver creates a resolver over groups with an LRU of cacheSize entries.
func NewResolver(groups *GroupMap, cacheSize int) (*Resolver, error) {
	if groups == nil || groups.Len() == 0 {
		return nil, fmt.Errorf("%w: empty group map", ErrNoGroup)
	}
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[RuntimeTarget, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}
	return &Resolver{groups: groups, cache: cache}, nil
}

// Resolve returns the id of the first group whose compat map records the
// runtime at a version <= target.Version. Runtimes no group covers get the
// fallback group; without one, ErrNoGroup.
func (r *Resolver) Resolve(target RuntimeTarget) (string, error) {
	if id, ok := r.cache.Get(target); ok {
		return id, nil
	}
	id, err := resolve(r.groups, target)
	if err != nil {
		return "", err
	}
	r.cache.Add(target, id)
	return id, nil
}

func resolve(groups *GroupMap, target RuntimeTarget) (string, error) {
	if version.Validate(target.Version) == nil && !version.IsInfinity(target.Version) {
		for _, e := range groups.entries {
			v, ok := e.Group.RuntimeCompatMap[target.Name]
			if ok && version.Compare(target.Version, v) >= 0 {
				return e.ID, nil
			}
		}
	}
	if groups.HasFallback() {
		return FallbackID, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoGroup, target)
}
