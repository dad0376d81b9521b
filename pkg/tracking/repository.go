package tracking

import (
	"context"
	"time"
)

// VisitorStore persists visitors.
//
// FindByID and FindBySession return ErrVisitorNotFound when nothing matches.
// Create and Save return ErrDuplicateVisitor when the (SessionKey, Address)
// pair is already taken by another visitor.
type VisitorStore interface {
	FindByID(ctx context.Context, id string) (*Visitor, error)
	FindBySession(ctx context.Context, sessionKey, address string) (*Visitor, error)
	Create(ctx context.Context, v *Visitor) error
	Save(ctx context.Context, v *Visitor) error
	// DeleteInactive removes visitors whose last activity is before cutoff
	// and returns how many were removed.
	DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// PolicyReader lists the exclusion policy records.
type PolicyReader interface {
	ListBannedAddresses(ctx context.Context) ([]string, error)
	ListExcludedAgents(ctx context.Context) ([]string, error)
}

// PolicyStore manages the exclusion policy records. Every operation is
// idempotent.
type PolicyStore interface {
	BanAddress(ctx context.Context, address string) error
	UnbanAddress(ctx context.Context, address string) error
	ExcludeAgent(ctx context.Context, pattern string) error
	IncludeAgent(ctx context.Context, pattern string) error
}

// Repository is the storage contract the tracker depends on.
type Repository interface {
	VisitorStore
	PolicyReader
}
