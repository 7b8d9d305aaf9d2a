// ABOUTME: Router resolves a type identifier from the URL to the handlers serving it
// ABOUTME: Distinguishes unknown identifiers from identifiers of the other bundle kind

package server

import (
	"errors"
	"fmt"
	"sort"

	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/protocol"
)

// Router errors
var (
	// ErrNoRoute means no type with this identifier is configured
	ErrNoRoute = errors.New("unknown type identifier")

	// ErrWrongKind means the type exists but serves the other bundle kind
	ErrWrongKind = errors.New("type identifier serves a different kind")
)

// Router maps type identifiers to their protocol handlers.
type Router struct {
	types map[string]*protocol.Handlers
}

// NewRouter creates a Router. Duplicate type identifiers are rejected.
func NewRouter(handlers ...*protocol.Handlers) (*Router, error) {
	r := &Router{types: make(map[string]*protocol.Handlers, len(handlers))}
	for _, h := range handlers {
		if _, dup := r.types[h.TypeID()]; dup {
			return nil, fmt.Errorf("duplicate type identifier %q", h.TypeID())
		}
		r.types[h.TypeID()] = h
	}
	return r, nil
}

// Route returns the handlers for typeID. An empty kind matches either kind.
func (r *Router) Route(typeID string, kind bundle.Kind) (*protocol.Handlers, error) {
	h, ok := r.types[typeID]
	if !ok {
		return nil, ErrNoRoute
	}
	if kind != "" && h.Kind() != kind {
		return nil, ErrWrongKind
	}
	return h, nil
}

// Types lists the configured type identifiers in sorted order.
func (r *Router) Types() []string {
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
