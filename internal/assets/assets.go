// Package assets externalizes binary payloads out of structured documents
// before persistence and resolves them back on load.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Xperiamol/FlashNote-sub001/internal/document"
)

// ErrNotFound is returned by Get for an unknown asset id.
var ErrNotFound = errors.New("assets: not found")

// Store is the asset storage backend. Implementations must be safe for
// concurrent calls on distinct asset ids.
type Store interface {
	// Put stores a payload under id. Putting an id that is already stored
	// is a cheap no-op returning the original reference.
	Put(ctx context.Context, id string, payload document.Payload) (document.AssetReference, error)
	// Get returns the payload bytes for id.
	Get(ctx context.Context, id string) ([]byte, error)
	// Has reports whether id is already stored.
	Has(ctx context.Context, id string) (bool, error)
}

// Externalize stores every payload and returns the references that replace
// them in persisted content. Must run before every structured-document write.
// Idempotent: already-stored ids are detected by id and not re-uploaded.
func Externalize(ctx context.Context, store Store, files map[string]document.Payload) (map[string]document.AssetReference, error) {
	refs := make(map[string]document.AssetReference, len(files))
	for id, payload := range files {
		ref, err := store.Put(ctx, id, payload)
		if err != nil {
			return nil, fmt.Errorf("assets: externalize %s: %w", id, err)
		}
		refs[id] = ref
	}
	return refs, nil
}

// Resolved is the outcome of resolving one reference. A non-nil Err marks a
// broken reference; the payload could not be fetched but the document load
// continues without it.
type Resolved struct {
	Ref  document.AssetReference
	Data []byte
	Err  error
}

// Broken reports whether the reference failed to resolve.
func (r Resolved) Broken() bool { return r.Err != nil }

// Resolve fetches the payloads for all references, concurrently across
// distinct ids. Individual failures never fail the whole resolve; the failed
// entry carries its error instead.
func Resolve(ctx context.Context, store Store, refs map[string]document.AssetReference) map[string]Resolved {
	out := make(map[string]Resolved, len(refs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for id, ref := range refs {
		wg.Add(1)
		go func(id string, ref document.AssetReference) {
			defer wg.Done()
			data, err := store.Get(ctx, id)
			mu.Lock()
			out[id] = Resolved{Ref: ref, Data: data, Err: err}
			mu.Unlock()
		}(id, ref)
	}
	wg.Wait()
	return out
}
