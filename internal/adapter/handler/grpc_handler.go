package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/grocery-store/internal/auth"
	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/core/service"
)

type identityCtxKey struct{}

type GRPCHandler struct {
	orders    *service.OrderService
	inventory *service.InventoryService
	logger    *zap.Logger
}

var _ OrderServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(orders *service.OrderService, inventory *service.InventoryService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orders: orders, inventory: inventory, logger: logger.Named("grpc")}
}

// NewGRPCServer builds a server with the JSON codec and bearer-token
// authentication on every unary call.
func NewGRPCServer(h *GRPCHandler, authn auth.Authenticator, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(h.authInterceptor(authn)),
	}, opts...)

	s := grpc.NewServer(opts...)
	RegisterOrderServiceServer(s, h)
	return s
}

func (h *GRPCHandler) authInterceptor(authn auth.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var token string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				token = auth.ParseBearer(vals[0])
			}
		}

		id, err := authn.Authenticate(ctx, token)
		if err != nil {
			return nil, h.status(info.FullMethod, err)
		}
		return handler(context.WithValue(ctx, identityCtxKey{}, id), req)
	}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRPCRequest) (*OrderResponse, error) {
	lines := make([]domain.LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.LineRequest{ItemID: it.ItemID, Quantity: it.Quantity})
	}

	order, err := h.orders.PlaceOrder(ctx, domain.PlaceOrderRequest{
		UserID:    callerFrom(ctx).UserID,
		RequestID: req.RequestID,
		Lines:     lines,
	})
	if err != nil {
		return nil, h.status("PlaceOrder", err)
	}
	resp := newOrderResponse(*order)
	return &resp, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderResponse, error) {
	order, err := h.orders.GetOrder(ctx, callerFrom(ctx), req.ID)
	if err != nil {
		return nil, h.status("GetOrder", err)
	}
	resp := newOrderResponse(*order)
	return &resp, nil
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *AdjustStockRPCRequest) (*GroceryResponse, error) {
	if !callerFrom(ctx).IsAdmin() {
		return nil, h.status("AdjustStock", domain.ErrForbidden)
	}

	item, err := h.inventory.AdjustStock(ctx, req.ItemID, req.Action, req.Amount)
	if err != nil {
		return nil, h.status("AdjustStock", err)
	}
	resp := newGroceryResponse(*item)
	return &resp, nil
}

func callerFrom(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityCtxKey{}).(domain.Identity)
	return id
}

func (h *GRPCHandler) status(method string, err error) error {
	de := toDomainError(err)
	if de.Code == domain.CodeTransaction {
		h.logger.Warn("call failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(grpcCode(de.Code), de.Error())
}
