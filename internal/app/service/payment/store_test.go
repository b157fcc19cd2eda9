package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/pkg/types"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

var paymentColumns = []string{
	"id", "user_id", "checkout_request_id", "merchant_request_id", "phone_number", "amount", "plan_id",
	"status", "result_code", "result_description", "transaction_id", "transaction_date", "settled_phone_number",
	"created_at", "updated_at",
}

func paymentRow(status types.PaymentStatus, resultCode any, receipt any) *sqlmock.Rows {
	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(paymentColumns).AddRow(
		"0190f7a4-0000-7000-8000-000000000001", aliceID, "ws_CO_1", "m-1", "254712345678", int64(2000), "monthly",
		string(status), resultCode, nil, receipt, nil, nil, created, created,
	)
}

func TestGormStore_CreatePaymentRequest(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "payment_requests"`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreatePaymentRequest(context.Background(), &models.PaymentRequest{
		ID:                "0190f7a4-0000-7000-8000-000000000001",
		UserID:            aliceID,
		CheckoutRequestID: "ws_CO_1",
		PhoneNumber:       "254712345678",
		Amount:            2000,
		PlanID:            types.PlanMonthly,
		Status:            types.PaymentStatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindPaymentRequest(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE checkout_request_id = \$1 AND user_id = \$2`).
		WithArgs("ws_CO_1", aliceID, sqlmock.AnyArg()).
		WillReturnRows(paymentRow(types.PaymentStatusPending, nil, nil))

	pr, err := store.FindPaymentRequest(context.Background(), aliceID, "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPending, pr.Status)
	require.Equal(t, int64(2000), pr.Amount)
	require.Nil(t, pr.ResultCode)

	mock.ExpectQuery(`SELECT \* FROM "payment_requests"`).
		WithArgs("ws_CO_1", bobID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(paymentColumns))
	_, err = store.FindPaymentRequest(context.Background(), bobID, "ws_CO_1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindByCheckout(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE checkout_request_id = \$1`).
		WithArgs("ws_CO_1", sqlmock.AnyArg()).
		WillReturnRows(paymentRow(types.PaymentStatusCompleted, 0, "ABC123"))
	pr, err := store.FindByCheckout(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, aliceID, pr.UserID)

	mock.ExpectQuery(`SELECT \* FROM "payment_requests"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns))
	_, err = store.FindByCheckout(context.Background(), "ws_CO_missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindSubscriber_Absent(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "subscribers" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}))

	sub, err := store.FindSubscriber(context.Background(), aliceID)
	require.NoError(t, err)
	require.Nil(t, sub)
}

const finalizeUpdate = `UPDATE "payment_requests" SET .* WHERE checkout_request_id = \$\d+ AND status = \$\d+`

func TestGormStore_Finalize_Transition(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(finalizeUpdate).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE checkout_request_id = \$1`).
		WillReturnRows(paymentRow(types.PaymentStatusCompleted, 0, "ABC123"))
	mock.ExpectCommit()

	var hooked *models.PaymentRequest
	res, err := store.Finalize(context.Background(),
		&Outcome{CheckoutRequestID: "ws_CO_1", ResultCode: 0, ResultDesc: "ok", ReceiptNumber: lo.ToPtr("ABC123")},
		func(_ context.Context, tx *gorm.DB, pr *models.PaymentRequest) error {
			require.NotNil(t, tx)
			hooked = pr
			return nil
		})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.True(t, res.Transitioned)
	require.Equal(t, types.PaymentStatusCompleted, res.Payment.Status)
	require.Equal(t, "ABC123", *res.Payment.TransactionID)
	require.Same(t, res.Payment, hooked)
}

func TestGormStore_Finalize_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(finalizeUpdate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests"`).
		WillReturnRows(paymentRow(types.PaymentStatusCompleted, 0, "ABC123"))
	mock.ExpectCommit()

	res, err := store.Finalize(context.Background(),
		&Outcome{CheckoutRequestID: "ws_CO_1", ResultCode: 0},
		func(context.Context, *gorm.DB, *models.PaymentRequest) error {
			t.Fatal("hook must not run for a terminal row")
			return nil
		})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.False(t, res.Transitioned)
}

func TestGormStore_Finalize_BackfillsReceipt(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(finalizeUpdate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "payment_requests" SET .* WHERE checkout_request_id = \$\d+ AND status = \$\d+ AND transaction_id IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests"`).
		WillReturnRows(paymentRow(types.PaymentStatusCompleted, 0, "ABC123"))
	mock.ExpectCommit()

	res, err := store.Finalize(context.Background(),
		&Outcome{CheckoutRequestID: "ws_CO_1", ResultCode: 0, ReceiptNumber: lo.ToPtr("ABC123")},
		func(context.Context, *gorm.DB, *models.PaymentRequest) error {
			t.Fatal("hook must not run for a backfill")
			return nil
		})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.False(t, res.Transitioned)
	require.True(t, res.Backfilled)
	require.Equal(t, "ABC123", *res.Payment.TransactionID)
}

func TestGormStore_Finalize_FailedOutcomeNeverBackfills(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(finalizeUpdate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests"`).
		WillReturnRows(paymentRow(types.PaymentStatusCompleted, 0, nil))
	mock.ExpectCommit()

	res, err := store.Finalize(context.Background(),
		&Outcome{CheckoutRequestID: "ws_CO_1", ResultCode: 1, ReceiptNumber: lo.ToPtr("ABC123")}, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.False(t, res.Backfilled)
}

func TestGormStore_Finalize_Unknown(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(finalizeUpdate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns))
	mock.ExpectRollback()

	_, err := store.Finalize(context.Background(), &Outcome{CheckoutRequestID: "ws_CO_missing", ResultCode: 1032}, nil)
	require.ErrorIs(t, err, ErrUnknownCheckout)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Finalize_HookErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(finalizeUpdate).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests"`).
		WillReturnRows(paymentRow(types.PaymentStatusCompleted, 0, "ABC123"))
	mock.ExpectRollback()

	boom := errors.New("upsert failed")
	_, err := store.Finalize(context.Background(), &Outcome{CheckoutRequestID: "ws_CO_1"},
		func(context.Context, *gorm.DB, *models.PaymentRequest) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListStalePending(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE status = \$1 AND created_at < \$2 ORDER BY created_at LIMIT`).
		WithArgs(types.PaymentStatusPending, cutoff, sqlmock.AnyArg()).
		WillReturnRows(paymentRow(types.PaymentStatusPending, nil, nil))

	rows, err := store.ListStalePending(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ws_CO_1", rows[0].CheckoutRequestID)
}

func TestGormStore_Scan(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "payment_requests" WHERE "status" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE "status" = \$1 ORDER BY "created_at" DESC LIMIT`).
		WillReturnRows(paymentRow(types.PaymentStatusPending, nil, nil))

	res, err := store.Scan(context.Background(), &ScanRequest{
		Filters: []*types.CommonFilter{{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"pending"}}},
		SortBy:  "id; DROP TABLE payment_request",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
