package payment

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/freedompay"
)

var orderIDPattern = regexp.MustCompile(`^unity_[0-9a-f]{16}$`)

func newTestService(store Store) *Service {
	return &Service{
		Store:          store,
		Signer:         freedompay.Signer{Secret: "s3cr3t"},
		MerchantID:     "500001",
		GatewayBaseURL: "https://api.freedompay.kg",
		PublicBaseURL:  "https://backend.example.com",
		Currency:       "UZS",
		Language:       "ru",
		PaymentOrigin:  "unity_app",
		SessionTTL:     time.Hour,
	}
}

func TestCreatePaymentReturnsPendingTransaction(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.CreatePayment(context.Background(), CreateRequest{
		UnityUserID: "user-1",
		Amount:      5000,
	})
	require.NoError(t, err)
	require.Regexp(t, orderIDPattern, res.OrderID)
	require.True(t, strings.HasPrefix(res.SessionID, "unity_"))
	require.Equal(t, int64(5000), res.Amount)
	require.Equal(t, "UZS", res.Currency)

	status, err := svc.CheckStatus(context.Background(), res.OrderID, "")
	require.NoError(t, err)
	require.Equal(t, StatusPending, status.Status)
	require.Nil(t, status.PaidAt)

	tx, err := store.GetByOrderID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, tx.ID)
}

func TestCreatePaymentValidation(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.CreatePayment(context.Background(), CreateRequest{Amount: 100})
	require.True(t, common.IsAppError(err))

	_, err = svc.CreatePayment(context.Background(), CreateRequest{UnityUserID: "u", Amount: 0})
	require.True(t, common.IsAppError(err))

	_, err = svc.CreatePayment(context.Background(), CreateRequest{UnityUserID: "u", Amount: -5})
	require.True(t, common.IsAppError(err))
}

func TestCreatePaymentRetriesOnDuplicateOrder(t *testing.T) {
	store := newMemStore()
	store.failCreate = ErrDuplicateOrder
	svc := newTestService(store)

	res, err := svc.CreatePayment(context.Background(), CreateRequest{
		UnityUserID: "user-1",
		Amount:      1000,
	})
	require.NoError(t, err)
	require.Regexp(t, orderIDPattern, res.OrderID)
}

func TestPaymentURLSortedWithSignatureLast(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.CreatePayment(context.Background(), CreateRequest{
		UnityUserID: "user-1",
		Amount:      2500,
		Description: "Premium video",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.PaymentURL, "https://api.freedompay.kg/payment.php?"))

	query := strings.SplitN(res.PaymentURL, "?", 2)[1]
	pairs := strings.Split(query, "&")
	keys := make([]string, 0, len(pairs))
	params := map[string]string{}
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		require.Len(t, kv, 2)
		keys = append(keys, kv[0])
		params[kv[0]] = kv[1]
	}

	// pg_sig comes last; everything before it is sorted by key.
	require.Equal(t, freedompay.FieldSignature, keys[len(keys)-1])
	for i := 1; i < len(keys)-1; i++ {
		require.Less(t, keys[i-1], keys[i])
	}

	require.Equal(t, "500001", params["pg_merchant_id"])
	require.Equal(t, "2500", params["pg_amount"])
	require.Equal(t, res.OrderID, params["pg_order_id"])
	require.Equal(t, "https://backend.example.com/payment-gateway/freedompay/success/", params["pg_success_url"])
	require.Equal(t, "https://backend.example.com/payment-gateway/freedompay/fail/", params["pg_fail_url"])

	// The outbound signature verifies against the payment script label.
	tx, err := store.GetByOrderID(context.Background(), res.OrderID)
	require.NoError(t, err)
	sig, _ := svc.Signer.Sign(svc.gatewayParams(tx), freedompay.ScriptPayment)
	require.Equal(t, sig, params[freedompay.FieldSignature])
}

func TestCheckStatusRequiresIdentifier(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.CheckStatus(context.Background(), "", "")
	require.True(t, common.IsAppError(err))
	appErr, _ := err.(*common.AppError)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestCheckStatusNotFound(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.CheckStatus(context.Background(), "unity_deadbeefdeadbeef", "")
	require.True(t, common.IsAppError(err))
	appErr, _ := err.(*common.AppError)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

func TestCheckStatusBySessionID(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.CreatePayment(context.Background(), CreateRequest{
		UnityUserID: "user-1",
		Amount:      3000,
	})
	require.NoError(t, err)

	status, err := svc.CheckStatus(context.Background(), "", res.SessionID)
	require.NoError(t, err)
	require.Equal(t, res.OrderID, status.OrderID)
}

func TestPaymentURLValuesUnescaped(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.CreatePayment(context.Background(), CreateRequest{
		UnityUserID: "user-1",
		Amount:      100,
		Description: "два слова",
	})
	require.NoError(t, err)

	// Raw values go into the URL; the gateway signs over unescaped strings.
	require.Contains(t, res.PaymentURL, "pg_description=два слова")
	_, err = url.Parse("https://example.com/?" + strings.SplitN(res.PaymentURL, "?", 2)[1])
	require.NoError(t, err)
}
