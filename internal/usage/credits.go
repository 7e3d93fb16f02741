package usage

import "server/internal/domain"

// Credit costs per operation class. Premium costs twice what quick does;
// the ratio is a policy constant, not derived from anything.
const (
	CreditCostQuick   = 1
	CreditCostPremium = 2
)

// CreditLedger holds the credit cost table and reads balances off profiles.
// Deduction itself is plain arithmetic done by the accountant.
type CreditLedger struct{}

// Cost returns the credit price of one operation of the given class.
func (CreditLedger) Cost(class domain.OperationClass) int {
	if class == domain.OperationPremium {
		return CreditCostPremium
	}
	return CreditCostQuick
}

// BalanceOf returns the credit balance carried on a profile. A nil profile
// yields zero; it never errors.
func (CreditLedger) BalanceOf(p *domain.Profile) int {
	if p == nil {
		return 0
	}
	return p.CreditBalance
}
