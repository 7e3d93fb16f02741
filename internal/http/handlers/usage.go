package handlers

import (
	"net/http"

	"server/internal/domain"
)

type classUsageDTO struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type usageResponse struct {
	Tier          string        `json:"tier"`
	Quick         classUsageDTO `json:"quick"`
	Premium       classUsageDTO `json:"premium"`
	CreditBalance int           `json:"credit_balance"`
}

// UsageGet reports the caller's current tier and per-class standing, the
// same numbers a denial would carry.
func (a *App) UsageGet(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	profile := a.Guard.Profile(r.Context(), id)
	acct := a.Guard.Accountant()

	quick := acct.CheckUsage(r.Context(), id, profile, domain.OperationQuick)
	premium := acct.CheckUsage(r.Context(), id, profile, domain.OperationPremium)

	a.json(w, http.StatusOK, usageResponse{
		Tier: quick.Tier,
		Quick: classUsageDTO{
			Used:      quick.Used,
			Limit:     quick.Limit,
			Remaining: quick.Remaining,
		},
		Premium: classUsageDTO{
			Used:      premium.Used,
			Limit:     premium.Limit,
			Remaining: premium.Remaining,
		},
		CreditBalance: acct.Ledger().BalanceOf(profile),
	})
}
