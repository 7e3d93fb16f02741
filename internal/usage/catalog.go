package usage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"server/internal/domain"
)

// Tier identifiers known to the default catalog.
const (
	TierAnonymous = "anonymous"
	TierFree      = "free"
	TierBase      = "base"
)

// TierDescriptor is a named policy bundle: quota limits, credit rules and
// watermark policy. Descriptors are immutable after the catalog is built.
type TierDescriptor struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	QuickLimit  int    `yaml:"quick_limit"`
	PremiumLimit int   `yaml:"premium_limit"`
	// MonthlyLimit is a pool shared by both operation classes. Zero means
	// the tier meters the two classes separately instead.
	MonthlyLimit       int  `yaml:"monthly_limit"`
	CanPurchaseCredits bool `yaml:"can_purchase_credits"`
	WatermarkFree      bool `yaml:"watermark_free"`
}

// HasMonthlyPool reports whether the tier accounts against a shared monthly
// pool rather than per-class counters.
func (t TierDescriptor) HasMonthlyPool() bool {
	return t.MonthlyLimit > 0
}

// LimitFor returns the per-class standing limit.
func (t TierDescriptor) LimitFor(class domain.OperationClass) int {
	if class == domain.OperationPremium {
		return t.PremiumLimit
	}
	return t.QuickLimit
}

// Catalog is the read-only tier lookup, loaded once at startup.
type Catalog struct {
	tiers map[string]TierDescriptor
}

// DefaultCatalog returns the compiled-in tier set.
func DefaultCatalog() *Catalog {
	return NewCatalog([]TierDescriptor{
		{
			ID:           TierAnonymous,
			DisplayName:  "Anonymous",
			QuickLimit:   3,
			PremiumLimit: 1,
		},
		{
			ID:                 TierFree,
			DisplayName:        "Free",
			QuickLimit:         5,
			PremiumLimit:       1,
			CanPurchaseCredits: true,
		},
		{
			ID:                 TierBase,
			DisplayName:        "Base",
			MonthlyLimit:       50,
			CanPurchaseCredits: true,
			WatermarkFree:      true,
		},
	})
}

// NewCatalog builds a catalog from descriptors.
func NewCatalog(tiers []TierDescriptor) *Catalog {
	m := make(map[string]TierDescriptor, len(tiers))
	for _, t := range tiers {
		m[t.ID] = t
	}
	return &Catalog{tiers: m}
}

// LoadCatalog reads tier descriptors from a YAML file. When path is empty the
// compiled-in defaults are returned.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("usage: read tier catalog: %w", err)
	}
	var doc struct {
		Tiers []TierDescriptor `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("usage: parse tier catalog: %w", err)
	}
	if len(doc.Tiers) == 0 {
		return nil, fmt.Errorf("usage: tier catalog %q defines no tiers", path)
	}
	cat := NewCatalog(doc.Tiers)
	for _, required := range []string{TierAnonymous, TierFree, TierBase} {
		if _, ok := cat.tiers[required]; !ok {
			return nil, fmt.Errorf("usage: tier catalog %q is missing tier %q", path, required)
		}
	}
	return cat, nil
}

// TierFor returns the descriptor for a tier id. Unknown ids are a programming
// error, not a user-facing condition, so it panics.
func (c *Catalog) TierFor(id string) TierDescriptor {
	t, ok := c.tiers[id]
	if !ok {
		panic(fmt.Sprintf("usage: unknown tier %q", id))
	}
	return t
}
