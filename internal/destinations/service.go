package destinations

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/gateway"
)

var (
	ErrNoDestination         = errors.New("no payment destination on file")
	ErrIncompleteDestination = errors.New("payment destination is incomplete")
)

// Resolved is a validated destination ready to be sent to the gateway.
type Resolved struct {
	Method      enums.PaymentMethod
	Destination gateway.Destination
}

type Service interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*Resolved, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "destination repo required")
	}
	return &service{repo: repo}, nil
}

// Resolve returns the user's primary destination. Missing or incomplete
// destinations are validation errors wrapping ErrNoDestination or ErrIncompleteDestination.
func (s *service) Resolve(ctx context.Context, userID uuid.UUID) (*Resolved, error) {
	dest, err := s.repo.Primary(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrNoDestination, "recipient has no payment method")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment destination")
	}
	resolved, err := Validate(dest)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// Validate checks the rail specific fields the gateway needs.
func Validate(dest *models.PaymentDestination) (*Resolved, error) {
	if dest == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrNoDestination, "recipient has no payment method")
	}
	out := gateway.Destination{
		PhoneNumber:   value(dest.PhoneNumber),
		Provider:      value(dest.Provider),
		AccountNumber: value(dest.AccountNumber),
		BankCode:      value(dest.BankCode),
		AccountName:   value(dest.AccountName),
	}
	var missing []string
	switch dest.Method {
	case enums.PaymentMethodMobileMoney:
		if out.PhoneNumber == "" {
			missing = append(missing, "phone_number")
		}
		if out.Provider == "" {
			missing = append(missing, "provider")
		}
		out.AccountNumber, out.BankCode, out.AccountName = "", "", ""
	case enums.PaymentMethodBankTransfer:
		if out.AccountNumber == "" {
			missing = append(missing, "account_number")
		}
		if out.BankCode == "" {
			missing = append(missing, "bank_code")
		}
		if out.AccountName == "" {
			missing = append(missing, "account_name")
		}
		out.PhoneNumber, out.Provider = "", ""
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrIncompleteDestination, "unsupported payment method")
	}
	if len(missing) > 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrIncompleteDestination, "payment destination is incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return &Resolved{Method: dest.Method, Destination: out}, nil
}

func value(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
