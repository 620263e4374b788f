package services

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/lock"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewLedger(db, NewCatalog(db), lock.NewKeyed(), "http://app.test/", zap.NewNop(), newTestMetrics()), db
}

func TestAmountFor(t *testing.T) {
	assert.Equal(t, int64(103), AmountFor(10000)) // 100.00
	assert.Equal(t, int64(0), AmountFor(0))
	assert.Equal(t, int64(205), AmountFor(19900)) // 204.97
	assert.Equal(t, int64(514), AmountFor(49900)) // 513.97
	assert.Equal(t, int64(1), AmountFor(1))
	assert.Equal(t, int64(103), AmountFor(9999)) // 102.9897
}

func TestLedger_Initiate(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t)
	user := createUser(t, db, "alice", "Free")
	basic := packageByName(t, db, "Basic")

	_, err := ledger.Initiate(ctx, user.ID, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	started, err := ledger.Initiate(ctx, user.ID, basic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(205), started.Amount)
	assert.Equal(t, "Basic", started.PackageName)
	assert.Equal(t, models.StatusPending, started.Transaction.Status)
	assert.True(t, strings.HasPrefix(started.Transaction.Ref, strings.TrimPrefix(started.OrderID, "order_")))
	assert.Len(t, started.OrderID, len("order_")+8)

	link, err := url.Parse(started.PaymentLink)
	require.NoError(t, err)
	assert.Equal(t, "/payment", link.Path)
	assert.Equal(t, started.OrderID, link.Query().Get("order_id"))
	assert.Equal(t, "205", link.Query().Get("amount"))
}

func TestLedger_ResolveSuccessSwitchesPackage(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t)
	user := createUser(t, db, "alice", "Free")
	pro := packageByName(t, db, "Pro")

	started, err := ledger.Initiate(ctx, user.ID, pro.ID)
	require.NoError(t, err)

	res, err := ledger.Resolve(ctx, user.ID, started.OrderID, OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, "http://app.test/payment-status?order_id="+started.OrderID+"&status=success", res.RedirectURL)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
	require.NotNil(t, reloaded.PackageID)
	assert.Equal(t, pro.ID, *reloaded.PackageID)

	// same outcome again is a no-op
	res, err = ledger.Resolve(ctx, user.ID, started.OrderID, OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
	assert.Equal(t, "completed", res.Status)

	// a terminal transaction never changes
	_, err = ledger.Resolve(ctx, user.ID, started.OrderID, OutcomeFailed)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestLedger_ResolveFailedKeepsPackage(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t)
	user := createUser(t, db, "alice", "Free")
	basic := packageByName(t, db, "Basic")

	started, err := ledger.Initiate(ctx, user.ID, basic.ID)
	require.NoError(t, err)

	res, err := ledger.Resolve(ctx, user.ID, started.OrderID, OutcomeFailed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Transaction.Status)
	assert.Equal(t, "failed", res.Status)
	assert.Contains(t, res.RedirectURL, "status=failed")

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
	assert.Equal(t, *user.PackageID, *reloaded.PackageID)

	_, err = ledger.Resolve(ctx, user.ID, started.OrderID, OutcomeSuccess)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestLedger_ResolveRejections(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t)
	alice := createUser(t, db, "alice", "Free")
	bob := createUser(t, db, "bob", "Free")
	basic := packageByName(t, db, "Basic")

	started, err := ledger.Initiate(ctx, alice.ID, basic.ID)
	require.NoError(t, err)

	_, err = ledger.Resolve(ctx, bob.ID, started.OrderID, OutcomeSuccess)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "orders are scoped to their owner")

	for _, bad := range []string{"", "order_", "abc", "order_zzzzzzzz", "order_1234567", "order_%%%%%%%%"} {
		_, err = ledger.Resolve(ctx, alice.ID, bad, OutcomeSuccess)
		assert.ErrorIs(t, err, apperr.ErrValidation, bad)
	}

	_, err = ledger.Resolve(ctx, alice.ID, started.OrderID, "maybe")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ledger.Resolve(ctx, alice.ID, "order_00000000", OutcomeSuccess)
	if !strings.HasPrefix(started.Transaction.Ref, "00000000") {
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
}

func TestLedger_QRCode(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t)
	user := createUser(t, db, "alice", "Free")
	basic := packageByName(t, db, "Basic")

	started, err := ledger.Initiate(ctx, user.ID, basic.ID)
	require.NoError(t, err)

	png, err := ledger.QRCode(ctx, user.ID, started.OrderID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))

	_, err = ledger.Resolve(ctx, user.ID, started.OrderID, OutcomeFailed)
	require.NoError(t, err)
	_, err = ledger.QRCode(ctx, user.ID, started.OrderID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
