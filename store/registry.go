// Package store holds the registry of blob-store backends.
// Each backend package registers a factory under its type name in an init function,
// so importing a backend for its side effects makes it available to Create.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobg/ethbs"
)

// Factory builds a store from its configuration parameters.
type Factory func(context.Context, map[string]interface{}) (ethbs.Store, error)

var registry = make(map[string]Factory)

// Register makes a backend available under the given key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create builds a store of the given registered type.
func Create(ctx context.Context, key string, conf map[string]interface{}) (ethbs.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfig builds a store from a configuration map
// whose "type" parameter names the backend.
func FromConfig(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("store config missing `type` parameter")
	}
	return Create(ctx, typ, conf)
}

// Nested builds the store described by the "nested" parameter of conf.
// Wrapping backends (lru, logging) use this.
func Nested(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, fmt.Errorf(`"nested" parameter missing "type"`)
	}
	return Create(ctx, nestedType, nested)
}

// Types lists the registered backend names.
func Types() []string {
	var result []string
	for k := range registry {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
