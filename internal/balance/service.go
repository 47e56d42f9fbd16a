package balance

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tillbook/tillbook/internal/accounts"
)

// rollupConcurrency bounds the per-child fan-out so wide account trees do
// not exhaust the connection pool.
const rollupConcurrency = 4

// ErrTagFilterOnParent rejects tag-filtered queries against parent
// accounts: filters are a leaf-account feature and do not propagate to
// children.
var ErrTagFilterOnParent = errors.New("balance: tag filters apply to leaf accounts only")

// Service computes account balances from posted journal lines, rolling
// parent accounts up from their children, with a read-through cache.
type Service struct {
	repo     Repository
	accounts accounts.Repository
	cache    Cache
}

func NewService(repo Repository, accountsRepo accounts.Repository, cache Cache) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{repo: repo, accounts: accountsRepo, cache: cache}
}

// GetAccountBalance resolves the account and returns its balance. Leaf
// accounts aggregate their own lines; parent accounts sum their children.
func (s *Service) GetAccountBalance(ctx context.Context, tenantID int64, accountCode string, q Query) (Balance, error) {
	account, err := s.accounts.GetByCode(ctx, tenantID, accountCode)
	if err != nil {
		return Balance{}, err
	}
	return s.balanceFor(ctx, account, q)
}

// Invalidate drops cached balances for the accounts a write touched.
// Writers call this after every commit. Parent roll-ups are not chased
// here; their entries age out on the short TTL.
func (s *Service) Invalidate(ctx context.Context, tenantID int64, accountCodes ...string) error {
	return s.cache.Invalidate(ctx, tenantID, accountCodes...)
}

func (s *Service) balanceFor(ctx context.Context, account accounts.Account, q Query) (Balance, error) {
	if account.IsParent {
		if len(q.Tags) > 0 {
			return Balance{}, ErrTagFilterOnParent
		}
		return s.rollup(ctx, account, q)
	}
	return s.leaf(ctx, account, q)
}

func (s *Service) leaf(ctx context.Context, account accounts.Account, q Query) (Balance, error) {
	key := CacheKey(account.TenantID, account.Code, q)
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}
	debit, credit, err := s.repo.SumAccountLines(ctx, account.TenantID, account.Code, q)
	if err != nil {
		return Balance{}, err
	}
	b := Balance{
		AccountCode: account.Code,
		DebitTotal:  debit,
		CreditTotal: credit,
		Balance:     debit.Sub(credit),
	}
	s.cache.Set(ctx, account.TenantID, account.Code, key, b)
	return b, nil
}

func (s *Service) rollup(ctx context.Context, parent accounts.Account, q Query) (Balance, error) {
	key := CacheKey(parent.TenantID, parent.Code, q)
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}
	children, err := s.accounts.ListChildren(ctx, parent.TenantID, parent.ID)
	if err != nil {
		return Balance{}, err
	}

	total := Balance{AccountCode: parent.Code}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rollupConcurrency)
	for _, child := range children {
		g.Go(func() error {
			// Date filter propagates to children; tag filters never do.
			b, err := s.leaf(gctx, child, Query{AsOf: q.AsOf})
			if err != nil {
				return err
			}
			mu.Lock()
			total.DebitTotal = total.DebitTotal.Add(b.DebitTotal)
			total.CreditTotal = total.CreditTotal.Add(b.CreditTotal)
			total.Balance = total.Balance.Add(b.Balance)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Balance{}, err
	}
	s.cache.Set(ctx, parent.TenantID, parent.Code, key, total)
	return total, nil
}
