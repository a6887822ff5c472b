package tracking

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dcastano/pagosur-backend/pkg/db/models"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	pkgerrors "github.com/dcastano/pagosur-backend/pkg/errors"
)

// PaymentState is the coarse payment summary exposed publicly. Tracking is
// unauthenticated, so the view deliberately omits amounts, buyer identity
// and per-gateway detail.
type PaymentState string

const (
	PaymentStatePaid     PaymentState = "paid"
	PaymentStatePending  PaymentState = "pending"
	PaymentStateFailed   PaymentState = "failed"
	PaymentStateRefunded PaymentState = "refunded"
)

// View is a public order snapshot keyed only by the merchant reference.
type View struct {
	Reference string            `json:"reference"`
	Status    enums.OrderStatus `json:"status"`
	Payment   PaymentState      `json:"payment"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type repository interface {
	FindOrderByReference(ctx context.Context, reference string) (*models.Order, error)
}

type Service struct {
	repo repository
}

func NewService(repo repository) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repository required")
	}
	return &Service{repo: repo}, nil
}

// Lookup resolves a merchant reference into the public tracking view.
// Unknown references surface as not-found without revealing whether the
// reference ever existed.
func (s *Service) Lookup(ctx context.Context, reference string) (*View, error) {
	order, err := s.repo.FindOrderByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &View{
		Reference: order.Reference,
		Status:    order.Status,
		Payment:   paymentState(order),
		UpdatedAt: order.UpdatedAt,
	}, nil
}

// paymentState collapses the order's transactions into one coarse state.
// The most advanced transaction wins: a void outranks an approval, an
// approval outranks failures and pending attempts.
func paymentState(order *models.Order) PaymentState {
	state := PaymentStatePending
	sawFailure := false
	for _, txn := range order.Transactions {
		switch txn.Status {
		case enums.PaymentStatusVoided:
			return PaymentStateRefunded
		case enums.PaymentStatusApproved:
			state = PaymentStatePaid
		case enums.PaymentStatusDeclined, enums.PaymentStatusError:
			sawFailure = true
		}
	}
	if state == PaymentStatePending && sawFailure {
		return PaymentStateFailed
	}
	return state
}
