package domain

import "time"

// AccountRole distinguishes the three tiers of the referral tree.
type AccountRole string

const (
	RolePartner   AccountRole = "partner"
	RoleAffiliate AccountRole = "affiliate"
	RoleClient    AccountRole = "client"
)

// Account is a trading account under surveillance. Partners sit at the root
// of the referral tree, affiliates are referred by a partner, and clients are
// referred by an affiliate. Role-specific fields are pointers so the zero
// value is "not applicable" rather than a misleading default.
type Account struct {
	ID           string      `json:"id"`
	Role         AccountRole `json:"role"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	TokenRef     string      `json:"token_ref"` // reference to the trading credential, never the token itself
	Balance      *float64    `json:"balance,omitempty"`
	ReferralCode string      `json:"referral_code,omitempty"`
	ReferrerID   string      `json:"referrer_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// HasReferrer reports whether this account role is required to carry a
// referrer (affiliates and clients; partners are roots).
func (a Account) HasReferrer() bool {
	return a.Role == RoleAffiliate || a.Role == RoleClient
}

// ValidateReferral enforces the referral-tree invariants: affiliates and
// clients must name an existing referrer and may never refer themselves.
// The known map is keyed by account id.
func (a Account) ValidateReferral(known map[string]Account) error {
	if !a.HasReferrer() {
		return nil
	}
	if a.ReferrerID == "" {
		return ErrValidation
	}
	if a.ReferrerID == a.ID {
		return ErrValidation
	}
	if _, ok := known[a.ReferrerID]; !ok {
		return ErrValidation
	}
	return nil
}
