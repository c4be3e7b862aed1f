// Package subscription finds recurring payments in a set of transactions.
package subscription

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Confidence weights. A group needs DefaultMinConfidence to be reported.
const (
	stableAmountScore    = 0.3
	regularIntervalScore = 0.3
	looseIntervalScore   = 0.15
	knownBrandScore      = 0.2
	categoryMarkerScore  = 0.2
	countScorePerPayment = 0.02
	maxCountScore        = 0.1

	regularIntervalCV = 0.15
	looseIntervalCV   = 0.25

	DefaultMinConfidence   = 0.5
	DefaultMinTransactions = 3
	DefaultAmountTolerance = 0.05
)

// Config holds the detector's tunables and curated lists.
type Config struct {
	// KnownBrands are lower-case substrings of merchant names that are known
	// subscription services.
	KnownBrands []string
	// CategoryMarkers are lower-case substrings of category names that mark
	// a subscription category.
	CategoryMarkers []string
	MinConfidence   float64
	MinTransactions int
	// AmountTolerance is the allowed relative deviation of every amount from
	// the group mean.
	AmountTolerance float64
}

func DefaultConfig() Config {
	return Config{
		KnownBrands: []string{
			"netflix", "spotify", "youtube", "disney", "hbo", "amazon prime",
			"prime video", "apple", "icloud", "google one", "google storage",
			"microsoft", "xbox", "playstation", "nintendo", "adobe", "canva",
			"chatgpt", "openai", "dropbox", "tidal", "deezer", "audible",
			"storytel", "legimi", "empik go", "canal plus", "skyshowtime",
			"player.pl", "multisport", "medicover", "luxmed", "orange",
			"t-mobile", "netia", "upc", "github", "notion", "duolingo",
		},
		CategoryMarkers: []string{"subscription", "subskrypcj", "abonament"},
		MinConfidence:   DefaultMinConfidence,
		MinTransactions: DefaultMinTransactions,
		AmountTolerance: DefaultAmountTolerance,
	}
}

// Detector is stateless apart from its configuration and safe for
// concurrent use.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	if cfg.MinTransactions < 2 {
		cfg.MinTransactions = DefaultMinTransactions
	}
	return &Detector{cfg: cfg}
}

type group struct {
	key string
	txs []core.Transaction
}

// Detect groups the expenses in txs by merchant and reports the groups that
// look like recurring payments, ordered by next payment date. categoryNames
// maps category ids to names and may be nil.
func (d *Detector) Detect(txs []core.Transaction, categoryNames map[string]string) []core.DetectedSubscription {
	var subs []core.DetectedSubscription
	for _, g := range groupByMerchant(txs) {
		if len(g.txs) < d.cfg.MinTransactions {
			continue
		}
		if sub, ok := d.analyze(g, categoryNames); ok {
			subs = append(subs, sub)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].NextPayment.Equal(subs[j].NextPayment) {
			return subs[i].NextPayment.Before(subs[j].NextPayment)
		}
		return subs[i].MerchantKey < subs[j].MerchantKey
	})
	return subs
}

// GroupKey returns the key a transaction is grouped under: its merchant id,
// else its counterparty, else its description.
func GroupKey(tx core.Transaction) string {
	if tx.MerchantID != nil && *tx.MerchantID != "" {
		return *tx.MerchantID
	}
	if c := strings.TrimSpace(tx.Counterparty()); c != "" {
		return c
	}
	return strings.TrimSpace(tx.Description)
}

func groupByMerchant(txs []core.Transaction) []group {
	index := make(map[string]int)
	var groups []group
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		key := GroupKey(tx)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].txs = append(groups[i].txs, tx)
	}
	return groups
}

func (d *Detector) analyze(g group, categoryNames map[string]string) (core.DetectedSubscription, bool) {
	txs := append([]core.Transaction(nil), g.txs...)
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TransactionDate.Before(txs[j].TransactionDate)
	})

	intervals := intervalDays(txs)
	meanInterval, cv := meanAndCV(intervals)
	cadence, ok := Classify(meanInterval)
	if !ok {
		return core.DetectedSubscription{}, false
	}

	amounts := make([]decimal.Decimal, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}
	mean := decimal.Avg(amounts[0], amounts[1:]...)

	name := merchantName(txs, g.key)
	categoryID := latestCategory(txs)
	categoryName := ""
	if categoryID != nil {
		categoryName = categoryNames[*categoryID]
	}

	score := 0.0
	if d.amountsStable(amounts, mean) {
		score += stableAmountScore
	}
	switch {
	case cv < regularIntervalCV:
		score += regularIntervalScore
	case cv < looseIntervalCV:
		score += looseIntervalScore
	}
	if containsAny(strings.ToLower(name+" "+g.key), d.cfg.KnownBrands) {
		score += knownBrandScore
	}
	if containsAny(strings.ToLower(categoryName), d.cfg.CategoryMarkers) {
		score += categoryMarkerScore
	}
	score += math.Min(maxCountScore, countScorePerPayment*float64(len(txs)))
	score = math.Round(math.Min(1, score)*100) / 100

	if score < d.cfg.MinConfidence {
		return core.DetectedSubscription{}, false
	}

	last := core.DateOf(txs[len(txs)-1].TransactionDate)
	return core.DetectedSubscription{
		MerchantKey:      g.key,
		MerchantName:     name,
		Frequency:        cadence.Frequency(),
		Amount:           core.RoundMoney(mean),
		Confidence:       score,
		LastPayment:      last,
		NextPayment:      cadence.Next(last),
		TransactionCount: len(txs),
		CategoryID:       categoryID,
	}, true
}

func (d *Detector) amountsStable(amounts []decimal.Decimal, mean decimal.Decimal) bool {
	limit := mean.Abs().Mul(decimal.NewFromFloat(d.cfg.AmountTolerance))
	for _, a := range amounts {
		if a.Sub(mean).Abs().GreaterThan(limit) {
			return false
		}
	}
	return true
}

func intervalDays(sorted []core.Transaction) []float64 {
	out := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		prev := core.DateOf(sorted[i-1].TransactionDate)
		cur := core.DateOf(sorted[i].TransactionDate)
		out = append(out, math.Round(cur.Sub(prev).Hours()/24))
	}
	return out
}

// meanAndCV returns the mean of xs and its coefficient of variation using
// the population standard deviation. cv is +Inf when the mean is zero.
func meanAndCV(xs []float64) (mean, cv float64) {
	if len(xs) == 0 {
		return 0, math.Inf(1)
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if mean == 0 {
		return 0, math.Inf(1)
	}
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance) / mean
}

// merchantName prefers the resolved merchant name of the most recent
// transaction, then its counterparty, then the group key.
func merchantName(sorted []core.Transaction, key string) string {
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Merchant != "" {
			return sorted[i].Merchant
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if c := strings.TrimSpace(sorted[i].Counterparty()); c != "" {
			return c
		}
	}
	return key
}

func latestCategory(sorted []core.Transaction) *string {
	for i := len(sorted) - 1; i >= 0; i-- {
		if id := sorted[i].CategoryID; id != nil && *id != "" {
			c := *id
			return &c
		}
	}
	return nil
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// MonthlyTotal sums the monthly equivalents of subs: weekly x 4.33,
// quarterly / 3, annual / 12.
func MonthlyTotal(subs []core.DetectedSubscription) decimal.Decimal {
	total := decimal.Zero
	for _, s := range subs {
		c, err := CadenceFor(s.Frequency)
		if err != nil {
			continue
		}
		total = total.Add(c.Monthly(s.Amount))
	}
	return core.RoundMoney(total)
}
