package merchant

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fintrack/internal/core"
)

// Resolution is the outcome of resolving one counterparty during ingestion.
type Resolution struct {
	Brand string
	Kind  Kind
	// Merchant is the matched existing record; nil when the brand is new or
	// the counterparty is not a merchant.
	Merchant *core.MerchantRecord
}

// MerchantID returns the matched merchant id, or nil.
func (res Resolution) MerchantID() *string {
	if res.Merchant == nil {
		return nil
	}
	id := res.Merchant.ID
	return &id
}

// IsNewBrand reports whether a brand was found that no existing record covers.
func (res Resolution) IsNewBrand() bool {
	return res.Kind == KindMerchant && res.Merchant == nil
}

// Resolve extracts the brand of counterparty and matches it against a
// snapshot of existing merchants.
func (r *Resolver) Resolve(counterparty string, merchants []core.MerchantRecord) Resolution {
	brand, kind := r.Classify(counterparty)
	res := Resolution{Brand: brand, Kind: kind}
	if kind != KindMerchant {
		return res
	}
	if m, ok := r.FindBestMatch(brand, merchants); ok {
		res.Merchant = &m
	}
	return res
}

// NewRecord builds a merchant record for a freshly seen brand. The original
// counterparty text is kept as an alias when it differs from the brand.
func NewRecord(brand, counterparty string) core.MerchantRecord {
	brand = strings.ToLower(strings.TrimSpace(brand))
	rec := core.MerchantRecord{
		ID:          uuid.NewString(),
		Name:        brand,
		DisplayName: DisplayName(brand),
	}
	if alias := strings.ToLower(strings.TrimSpace(counterparty)); alias != "" && alias != brand {
		rec.Aliases = []string{alias}
	}
	return rec
}

// DisplayName title-cases a brand token for presentation ("uber eats" ->
// "Uber Eats").
func DisplayName(brand string) string {
	return cases.Title(language.Und).String(brand)
}
