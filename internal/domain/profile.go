package domain

import "time"

// SubscriptionStatusActive is the only subscription status that counts as
// paying. Matching is exact and case-sensitive; in particular "trialing" is
// treated as non-paying.
const SubscriptionStatusActive = "active"

// Profile is the billing-relevant slice of an authenticated user's account.
// A nil *Profile means "no profile" and resolves to the free tier.
type Profile struct {
	UserID             string
	Email              string
	Locale             string
	Tier               string
	SubscriptionStatus string
	QuickUsed          int
	PremiumUsed        int
	MonthlyUsed        int
	MonthlyResetAt     time.Time
	CreditBalance      int
	PaymentCustomerID  string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UsageFields is the subset of profile columns the accounting core writes
// back after a committed generation.
type UsageFields struct {
	QuickUsed      int
	PremiumUsed    int
	MonthlyUsed    int
	MonthlyResetAt time.Time
	CreditBalance  int
}
