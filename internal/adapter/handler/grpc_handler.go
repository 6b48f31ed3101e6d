package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/auth"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const PlaceOrderMethod = "/storefront.v1.OrderService/PlaceOrder"

// JSONCodec carries plain Go structs over gRPC so the service needs no
// generated protobuf types.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

type PlaceOrderRPCRequest struct {
	Items           []domain.LineRequest `json:"items"`
	ShippingAddress *string              `json:"shipping_address,omitempty"`
}

type PlaceOrderRPCResponse struct {
	Order *domain.Order `json:"order"`
}

type OrderServiceServer interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRPCRequest) (*PlaceOrderRPCResponse, error)
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: "storefront.v1.OrderService",
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func placeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PlaceOrderRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PlaceOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).PlaceOrder(ctx, req.(*PlaceOrderRPCRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// NewGRPCServer returns a server with the order service registered behind
// bearer token authentication.
func NewGRPCServer(h *GRPCHandler, verifier *auth.Verifier) *grpc.Server {
	s := grpc.NewServer(
		grpc.ForceServerCodec(JSONCodec{}),
		grpc.UnaryInterceptor(UnaryAuthInterceptor(verifier)),
	)
	RegisterOrderServiceServer(s, h)
	return s
}

type GRPCHandler struct {
	orderService *service.OrderService
}

func NewGRPCHandler(orderService *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRPCRequest) (*PlaceOrderRPCResponse, error) {
	requester, ok := auth.RequesterFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	order, err := h.orderService.PlaceOrder(ctx, requester.UserID, req.Items, req.ShippingAddress)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PlaceOrderRPCResponse{Order: order}, nil
}

func UnaryAuthInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		requester, err := verifier.VerifyHeader(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}
		return handler(auth.WithRequester(ctx, requester), req)
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		log.Printf("grpc: %v", err)
		return status.Error(codes.Internal, "internal error")
	}
}

// OrderClient calls the order service over a connection dialed by the caller.
type OrderClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderClient(cc grpc.ClientConnInterface) *OrderClient {
	return &OrderClient{cc: cc}
}

func (c *OrderClient) PlaceOrder(ctx context.Context, token string, req *PlaceOrderRPCRequest) (*PlaceOrderRPCResponse, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	out := new(PlaceOrderRPCResponse)
	if err := c.cc.Invoke(ctx, PlaceOrderMethod, req, out, grpc.ForceCodec(JSONCodec{})); err != nil {
		return nil, err
	}
	return out, nil
}
