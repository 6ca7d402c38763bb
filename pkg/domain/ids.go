// Package domain holds the typed identifiers and value types shared across
// the service. Keeping them in one place prevents accidental mixing of the
// different id spaces (manager ids are uuids, user and voucher ids are
// positions in their manager's append-only lists).
package domain

import "github.com/google/uuid"

// ManagerID identifies a manager instance. Assigned once at construction and
// never reused.
type ManagerID uuid.UUID

// NewManagerID allocates a fresh manager identifier.
func NewManagerID() ManagerID {
	return ManagerID(uuid.New())
}

// ParseManagerID parses the string form of a manager id.
func ParseManagerID(s string) (ManagerID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ManagerID{}, err
	}
	return ManagerID(u), nil
}

func (m ManagerID) String() string {
	return uuid.UUID(m).String()
}

// MarshalText renders the id in canonical uuid form for JSON and logs.
func (m ManagerID) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses the canonical uuid form.
func (m *ManagerID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*m = ManagerID(u)
	return nil
}

// IsZero reports whether the id is the zero uuid.
func (m ManagerID) IsZero() bool {
	return uuid.UUID(m) == uuid.Nil
}

// UserID is a user's position in its manager's users list.
// Ids are dense and monotonic: 0, 1, 2, ... in registration order.
type UserID uint64

// VoucherID is a voucher's position in its manager's vouchers list.
type VoucherID uint64

// Address is an authenticated caller identity as provided by the host
// identity layer. The service never verifies signatures itself; it trusts
// the address attached to the request context.
type Address string

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}
