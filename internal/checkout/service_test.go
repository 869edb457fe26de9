package checkout_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokoni-dev/backend-sokoni/internal/checkout"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
)

func TestCreateInputValidation(t *testing.T) {
	svc := &checkout.Service{Currency: "KES"}

	_, err := svc.Create(context.Background(), "not-a-uuid", checkout.Input{CartID: uuid.New()})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)

	_, err = svc.Create(context.Background(), uuid.NewString(), checkout.Input{})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)

	_, err = svc.Create(context.Background(), uuid.NewString(), checkout.Input{
		CartID:       uuid.New(),
		ShippingCost: decimal.NewFromInt(-5),
	})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}
