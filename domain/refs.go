package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// RefKind names the local entity families the federation layer may point at.
type RefKind string

const (
	RefEntry    RefKind = "entry"
	RefPost     RefKind = "post"
	RefComment  RefKind = "comment"
	RefMagazine RefKind = "magazine"
	RefUser     RefKind = "user"
	RefReport   RefKind = "report"
	RefBan      RefKind = "ban"
)

// Ref is a typed pointer to a local entity. The protocol layer never holds
// full domain objects, only refs resolved at apply time.
type Ref struct {
	Kind RefKind
	Id   uuid.UUID
}

func NewRef(kind RefKind, id uuid.UUID) Ref {
	return Ref{Kind: kind, Id: id}
}

// Key returns a stable string form, used for per-entity locking.
func (r Ref) Key() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Id)
}

func (r Ref) String() string {
	return r.Key()
}

func (r Ref) IsZero() bool {
	return r.Kind == "" || r.Id == uuid.Nil
}
