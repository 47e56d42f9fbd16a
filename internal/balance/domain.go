package balance

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Query narrows a balance computation. Tags are exact-match filters over
// journal-line tags and apply to leaf accounts only; parent roll-ups carry
// the date filter but never tag filters.
type Query struct {
	AsOf *time.Time
	Tags map[string]string
}

// Balance is the aggregation result for one account.
type Balance struct {
	AccountCode string          `json:"account_code"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
	// Balance is debit minus credit: positive for debit-normal accounts,
	// negative for credit-normal ones. Callers apply abs() per account type.
	Balance decimal.Decimal `json:"balance"`
}

// CacheKey renders the canonical cache key for a query. Tenant id is always
// part of the key so cached data can never leak across tenants.
func CacheKey(tenantID int64, accountCode string, q Query) string {
	var b strings.Builder
	b.WriteString("bal:")
	b.WriteString(strconv.FormatInt(tenantID, 10))
	b.WriteByte(':')
	b.WriteString(accountCode)
	b.WriteByte(':')
	if q.AsOf != nil {
		b.WriteString(q.AsOf.Format("2006-01-02"))
	}
	b.WriteByte(':')
	b.WriteString(canonicalTags(q.Tags))
	return b.String()
}

func canonicalTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ",")
}
