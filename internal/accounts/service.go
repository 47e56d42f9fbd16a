package accounts

import (
	"context"
	"errors"
	"strings"
)

// Service exposes the tenant's chart of accounts. The ledger core treats
// the directory as read-only; CreateAccount exists for setup tooling only.
type Service struct {
	repo   Repository
	writer Writer
}

// Writer persists setup-time account mutations.
type Writer interface {
	Insert(ctx context.Context, a Account) (Account, error)
}

func NewService(repo Repository, writer Writer) *Service {
	return &Service{repo: repo, writer: writer}
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]Account, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *Service) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return s.repo.GetByCode(ctx, tenantID, code)
}

// CreateInput captures setup-time account creation.
type CreateInput struct {
	TenantID   int64
	Code       string
	Name       string
	Type       AccountType
	ParentCode string
	IsParent   bool
}

func (in CreateInput) Validate() error {
	if in.TenantID == 0 {
		return errors.New("accounts: tenant required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("accounts: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("accounts: name required")
	}
	switch in.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
	default:
		return errors.New("accounts: unknown account type")
	}
	if in.IsParent && in.ParentCode != "" {
		return errors.New("accounts: parent account cannot itself have a parent")
	}
	return nil
}

// CreateAccount inserts a new account. Children may only attach to
// single-level parents.
func (s *Service) CreateAccount(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	if s.writer == nil {
		return Account{}, errors.New("accounts: directory is read-only")
	}
	account := Account{
		TenantID: in.TenantID,
		Code:     in.Code,
		Name:     in.Name,
		Type:     in.Type,
		IsParent: in.IsParent,
		IsActive: true,
	}
	if in.ParentCode != "" {
		parent, err := s.repo.GetByCode(ctx, in.TenantID, in.ParentCode)
		if err != nil {
			return Account{}, err
		}
		if !parent.IsParent {
			return Account{}, errors.New("accounts: parent code does not reference a parent account")
		}
		id := parent.ID
		account.ParentID = &id
	}
	return s.writer.Insert(ctx, account)
}
