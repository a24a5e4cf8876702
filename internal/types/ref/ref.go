// Package ref holds the typed pointer a ledger row keeps to the entity that caused it.
package ref

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindOrder   Kind = "orders"
	KindPayment Kind = "payment_transactions"
)

var ErrUnknownKind = errors.New("unknown reference kind")

type Ref struct {
	Kind Kind  `json:"type"`
	ID   int64 `json:"id"`
}

func Order(id int64) *Ref {
	return &Ref{Kind: KindOrder, ID: id}
}

func Payment(id int64) *Ref {
	return &Ref{Kind: KindPayment, ID: id}
}

// Parse rebuilds a reference from its stored columns. Both empty means no reference.
func Parse(kind string, id *int64) (*Ref, error) {
	if kind == "" && id == nil {
		return nil, nil
	}
	if id == nil {
		return nil, fmt.Errorf("reference %q without id", kind)
	}
	switch Kind(kind) {
	case KindOrder, KindPayment:
		return &Ref{Kind: Kind(kind), ID: *id}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Columns splits r into nullable kind and id values for storage.
func (r *Ref) Columns() (*string, *int64) {
	if r == nil {
		return nil, nil
	}
	k := string(r.Kind)
	id := r.ID
	return &k, &id
}

func (r *Ref) Is(kind Kind) bool {
	return r != nil && r.Kind == kind
}

func (r *Ref) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}
