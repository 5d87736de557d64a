// Package auditctx propagates audit metadata (acting principal, network
// identifiers, transaction id, free-form metadata) across suspension
// points without resorting to a process-global mutable.
//
// Go has no continuation-local storage, so the "async-scoped" context the
// original design calls for is modeled with a mutable cell reachable from
// a context.Context value: WithContext installs a fresh cell under a
// private key, MergeContext locks the nearest cell and merges into it in
// place. Because the cell is shared by value through ctx, goroutines
// spawned from inside a bound scope observe later merges performed by
// their parent, matching the "dynamic extent" semantics of the original
// async-local design.
package auditctx

import (
	"context"
	"sync"
)

// Context is the ambient audit metadata attached to a request/transaction.
type Context struct {
	UserID        string
	IPAddress     string
	UserAgent     string
	TransactionID string
	Metadata      map[string]any
}

type ctxKey struct{}

type cell struct {
	mu    sync.Mutex
	value Context
}

// WithContext binds c for the remainder of ctx's dynamic extent, shadowing
// any binding from an outer scope.
func WithContext(parent context.Context, c Context) context.Context {
	return context.WithValue(parent, ctxKey{}, &cell{value: cloneContext(c)})
}

// MergeContext right-biased merges partial into the nearest binding,
// mutating it in place so other holders of ctx observe the update. If ctx
// has no binding yet, one is installed (equivalent to WithContext).
func MergeContext(ctx context.Context, partial Context) context.Context {
	if c, ok := ctx.Value(ctxKey{}).(*cell); ok {
		c.mu.Lock()
		c.value = mergeContext(c.value, partial)
		c.mu.Unlock()
		return ctx
	}
	return WithContext(ctx, partial)
}

// FromContext returns the effective binding, or false if none is set.
func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(ctxKey{}).(*cell)
	if !ok {
		return Context{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneContext(c.value), true
}

func mergeContext(base, partial Context) Context {
	out := base
	if partial.UserID != "" {
		out.UserID = partial.UserID
	}
	if partial.IPAddress != "" {
		out.IPAddress = partial.IPAddress
	}
	if partial.UserAgent != "" {
		out.UserAgent = partial.UserAgent
	}
	if partial.TransactionID != "" {
		out.TransactionID = partial.TransactionID
	}
	if len(partial.Metadata) > 0 {
		out.Metadata = MergeMetadata(out.Metadata, partial.Metadata)
	}
	return out
}

func cloneContext(c Context) Context {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// forbiddenMetadataKeys are never allowed into a merged metadata map,
// regardless of source, to avoid prototype-pollution-style key collisions
// carried over from the original JavaScript implementation's threat model.
var forbiddenMetadataKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// MergeMetadata right-biased merges any number of metadata maps: later
// sources override earlier ones, nil maps are skipped, forbidden keys are
// always dropped, and the result is nil (never an empty non-nil map) when
// every input is effectively empty after forbidden-key removal.
func MergeMetadata(sources ...map[string]any) map[string]any {
	var out map[string]any
	for _, src := range sources {
		for k, v := range src {
			if v == nil || forbiddenMetadataKeys[k] {
				continue
			}
			if out == nil {
				out = make(map[string]any)
			}
			out[k] = v
		}
	}
	return out
}
