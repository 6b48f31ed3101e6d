package handler

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/auth"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

func newGRPCClient(t *testing.T) (*OrderClient, *storage.MemoryAdapter) {
	store := storage.NewMemoryAdapter(storage.DemoProducts()...)
	orders := service.NewOrderService(store, 100)
	t.Cleanup(orders.Close)

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewGRPCHandler(orders), auth.NewVerifier(testSecret))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewOrderClient(conn), store
}

func TestGRPC_PlaceOrder(t *testing.T) {
	client, store := newGRPCClient(t)

	resp, err := client.PlaceOrder(context.Background(), token(t, "grpc-user", false), &PlaceOrderRPCRequest{
		Items: []domain.LineRequest{{ProductID: 2, Quantity: 3}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Order)
	assert.Equal(t, "grpc-user", resp.Order.UserID)
	assert.Equal(t, "89.97", resp.Order.TotalAmount.StringFixed(2))

	p, err := store.GetProduct(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 47, p.StockQuantity)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	client, _ := newGRPCClient(t)
	tok := token(t, "grpc-user", false)

	tests := []struct {
		name  string
		items []domain.LineRequest
		code  codes.Code
	}{
		{"validation", []domain.LineRequest{{ProductID: 1, Quantity: -1}}, codes.InvalidArgument},
		{"not found", []domain.LineRequest{{ProductID: 404, Quantity: 1}}, codes.NotFound},
		{"insufficient stock", []domain.LineRequest{{ProductID: 1, Quantity: 11}}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.PlaceOrder(context.Background(), tok, &PlaceOrderRPCRequest{Items: tt.items})
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestGRPC_Unauthenticated(t *testing.T) {
	client, _ := newGRPCClient(t)

	_, err := client.PlaceOrder(context.Background(), "bogus", &PlaceOrderRPCRequest{
		Items: []domain.LineRequest{{ProductID: 1, Quantity: 1}},
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{domain.ErrForbidden, codes.PermissionDenied},
		{domain.ErrOrderNotFound, codes.NotFound},
		{&domain.StorageError{Op: "commit", Err: context.DeadlineExceeded}, codes.DeadlineExceeded},
		{&domain.StorageError{Op: "commit", Err: errors.New("connection reset")}, codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(toStatus(tt.err)), tt.err.Error())
	}
}
