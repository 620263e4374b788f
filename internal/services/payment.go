package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/lock"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/observability"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	orderPrefix    = "order_"
	refPrefixLen   = 8
	// taxBasisPoints is the 3% surcharge added to the package price.
	taxBasisPoints = 300
	refAttempts    = 10
	qrSize         = 256
)

var refPrefixPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Outcomes a payment page can report.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Initiation is the pending payment handed to the client.
type Initiation struct {
	Transaction *models.Transaction `json:"transaction"`
	OrderID     string              `json:"order_id"`
	Amount      int64               `json:"amount"`
	PackageName string              `json:"package_name"`
	PaymentLink string              `json:"payment_link"`
}

type Resolution struct {
	Transaction *models.Transaction `json:"transaction"`
	OrderID     string              `json:"order_id"`
	Status      string              `json:"status"`
	RedirectURL string              `json:"redirect_url"`
}

// Ledger drives transactions through pending -> completed | failed.
type Ledger struct {
	db          *gorm.DB
	catalog     *Catalog
	locks       *lock.Keyed
	frontendURL string
	log         *zap.Logger
	metrics     *observability.Metrics
}

func NewLedger(db *gorm.DB, catalog *Catalog, locks *lock.Keyed, frontendURL string, log *zap.Logger, metrics *observability.Metrics) *Ledger {
	return &Ledger{
		db:          db,
		catalog:     catalog,
		locks:       locks,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		log:         log,
		metrics:     metrics,
	}
}

// AmountFor returns ceil(price * 1.03) in whole units for a price in cents.
func AmountFor(priceCents int64) int64 {
	return (priceCents*(10000+taxBasisPoints) + 999_999) / 1_000_000
}

// PaymentLink is the relative payment page URL for an order.
func PaymentLink(orderID string, amount int64) string {
	q := url.Values{}
	q.Set("order_id", orderID)
	q.Set("amount", fmt.Sprint(amount))
	return "/payment?" + q.Encode()
}

func orderIDOf(ref string) string { return orderPrefix + ref[:refPrefixLen] }

func (l *Ledger) Initiate(ctx context.Context, userID uuid.UUID, packageID uint) (*Initiation, error) {
	pkg, err := l.catalog.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}
	ref, err := l.newRef(ctx)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		UserID:    userID,
		PackageID: pkg.ID,
		Ref:       ref,
		Amount:    AmountFor(pkg.PriceCents),
		Status:    models.StatusPending,
	}
	if err := l.db.WithContext(ctx).Omit("Package").Create(tx).Error; err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	tx.Package = *pkg

	orderID := orderIDOf(ref)
	l.log.Info("payment initiated",
		zap.String("user_id", userID.String()),
		zap.String("order_id", orderID),
		zap.Int64("amount", tx.Amount),
	)
	return &Initiation{
		Transaction: tx,
		OrderID:     orderID,
		Amount:      tx.Amount,
		PackageName: pkg.Name,
		PaymentLink: PaymentLink(orderID, tx.Amount),
	}, nil
}

// newRef draws random UUIDs until the 8-char prefix is unused, so an order
// id always names exactly one transaction.
func (l *Ledger) newRef(ctx context.Context) (string, error) {
	for range refAttempts {
		ref := uuid.NewString()
		var count int64
		err := l.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("ref LIKE ?", ref[:refPrefixLen]+"%").
			Count(&count).Error
		if err != nil {
			return "", fmt.Errorf("check ref: %w", err)
		}
		if count == 0 {
			return ref, nil
		}
	}
	return "", errors.New("could not allocate a unique transaction ref")
}

// Resolve applies the payment page outcome. Pending transactions move to a
// terminal state; completing one also switches the user's package in the
// same DB transaction. Repeating the stored outcome is a no-op.
func (l *Ledger) Resolve(ctx context.Context, userID uuid.UUID, orderID, outcome string) (*Resolution, error) {
	prefix, ok := strings.CutPrefix(orderID, orderPrefix)
	if !ok || !refPrefixPattern.MatchString(prefix) {
		return nil, apperr.Validation("Invalid order id")
	}
	var target models.TransactionStatus
	switch outcome {
	case OutcomeSuccess:
		target = models.StatusCompleted
	case OutcomeFailed:
		target = models.StatusFailed
	default:
		return nil, apperr.Validation("status must be success or failed")
	}

	unlock := l.locks.Lock("payment:" + userID.String())
	defer unlock()

	var (
		t       models.Transaction
		changed bool
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Preload("Package").Where("user_id = ? AND ref LIKE ?", userID, prefix+"%")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Transaction not found")
			}
			return fmt.Errorf("load transaction: %w", err)
		}

		if t.Status.Terminal() {
			if t.Status == target {
				return nil
			}
			return apperr.Conflict(fmt.Sprintf("Transaction already %s", t.Status))
		}

		if err := tx.Model(&t).Update("status", target).Error; err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		t.Status = target
		if target == models.StatusCompleted {
			err := tx.Model(&models.User{}).Where("id = ?", t.UserID).Update("package_id", t.PackageID).Error
			if err != nil {
				return fmt.Errorf("assign package: %w", err)
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		l.metrics.PaymentTransitions.WithLabelValues(string(target)).Inc()
		l.log.Info("payment resolved",
			zap.String("user_id", userID.String()),
			zap.String("order_id", orderID),
			zap.String("status", string(target)),
		)
	}
	return &Resolution{
		Transaction: &t,
		OrderID:     orderID,
		Status:      string(t.Status),
		RedirectURL: l.redirectURL(orderID, outcome),
	}, nil
}

func (l *Ledger) redirectURL(orderID, outcome string) string {
	q := url.Values{}
	q.Set("order_id", orderID)
	q.Set("status", outcome)
	return l.frontendURL + "/payment-status?" + q.Encode()
}

// QRCode renders the absolute payment link of a pending order as a PNG.
func (l *Ledger) QRCode(ctx context.Context, userID uuid.UUID, orderID string) ([]byte, error) {
	prefix, ok := strings.CutPrefix(orderID, orderPrefix)
	if !ok || !refPrefixPattern.MatchString(prefix) {
		return nil, apperr.Validation("Invalid order id")
	}
	var t models.Transaction
	err := l.db.WithContext(ctx).Where("user_id = ? AND ref LIKE ?", userID, prefix+"%").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if t.Status != models.StatusPending {
		return nil, apperr.Conflict(fmt.Sprintf("Transaction already %s", t.Status))
	}
	png, err := qrcode.Encode(l.frontendURL+PaymentLink(orderID, t.Amount), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
