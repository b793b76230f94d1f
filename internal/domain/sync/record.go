package sync

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Record union
// ---------------------------------------------------------------------------

// Record is the tagged union of local business record shapes crossing the
// converter boundary. Exactly one of Contact, Product or SalesDocument is set,
// selected by EntityType. Extra carries remote fields the engine does not
// model, preserved verbatim for forward compatibility.
type Record struct {
	EntityType EntityType
	LocalID    uuid.UUID
	// UpdatedAt is the local edit timestamp, compared against the mapping's
	// LastSyncedAt by the pull conflict policy.
	UpdatedAt time.Time

	Contact       *Contact
	Product       *Product
	SalesDocument *SalesDocument

	// Extra holds unknown remote fields keyed by their remote names
	Extra map[string]any
}

// Validate checks the union invariant: exactly one shape set, matching EntityType
func (r *Record) Validate() error {
	if !r.EntityType.IsValid() {
		return ErrInvalidEntityType
	}
	if r.LocalID == uuid.Nil {
		return ErrInvalidLocalID
	}
	switch r.EntityType {
	case EntityTypeContact:
		if r.Contact == nil || r.Product != nil || r.SalesDocument != nil {
			return ErrInvalidEntityType
		}
	case EntityTypeProduct:
		if r.Product == nil || r.Contact != nil || r.SalesDocument != nil {
			return ErrInvalidEntityType
		}
	case EntityTypeSalesDocument:
		if r.SalesDocument == nil || r.Contact != nil || r.Product != nil {
			return ErrInvalidEntityType
		}
	}
	return nil
}

// Contact is a CRM contact / accounting customer
type Contact struct {
	Name      string
	Email     string
	Phone     string
	Company   string
	TaxNumber string
	Notes     string
}

// Product is a CRM product / accounting article
type Product struct {
	Code         string
	Name         string
	Description  string
	Unit         string
	UnitPrice    decimal.Decimal
	CurrencyCode string
	TaxRate      decimal.Decimal
}

// SalesDocument is a CRM sales document (order, invoice draft)
type SalesDocument struct {
	DocumentNumber string
	CustomerName   string
	// ContactLocalID references the contact this document belongs to.
	// The batch processor never pushes a document whose references are unmapped.
	ContactLocalID uuid.UUID
	IssueDate      time.Time
	DueDate        *time.Time
	CurrencyCode   string
	Lines          []DocumentLine
	Total          decimal.Decimal
}

// DocumentLine is one line item of a sales document
type DocumentLine struct {
	ProductLocalID uuid.UUID
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
}

// ReferencedEntities returns the local ids a sales document depends on,
// grouped by entity type. Empty for contacts and products.
func (r *Record) ReferencedEntities() map[EntityType][]uuid.UUID {
	if r.EntityType != EntityTypeSalesDocument || r.SalesDocument == nil {
		return nil
	}
	refs := make(map[EntityType][]uuid.UUID)
	if r.SalesDocument.ContactLocalID != uuid.Nil {
		refs[EntityTypeContact] = append(refs[EntityTypeContact], r.SalesDocument.ContactLocalID)
	}
	seen := make(map[uuid.UUID]bool)
	for _, line := range r.SalesDocument.Lines {
		if line.ProductLocalID != uuid.Nil && !seen[line.ProductLocalID] {
			seen[line.ProductLocalID] = true
			refs[EntityTypeProduct] = append(refs[EntityTypeProduct], line.ProductLocalID)
		}
	}
	return refs
}
