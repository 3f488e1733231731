package handler

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/grocery-store/internal/adapter/storage"
	"github.com/rl1809/grocery-store/internal/auth"
	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/core/service"
)

const bufSize = 1024 * 1024

type GRPCHandlerSuite struct {
	suite.Suite

	listener *bufconn.Listener
	server   *grpc.Server
	conn     *grpc.ClientConn
	client   *OrderServiceClient
	store    *storage.MemoryAdapter
	orders   *service.OrderService
	authn    *auth.JWTAuthenticator
	item     *domain.Item
}

func (s *GRPCHandlerSuite) SetupTest() {
	logger := zaptest.NewLogger(s.T())
	s.store = storage.NewMemoryAdapter()
	s.orders = service.NewOrderService(s.store, service.OrderOptions{Logger: logger})
	s.authn = auth.NewJWTAuthenticator("test-secret", time.Minute)

	h := NewGRPCHandler(s.orders, service.NewInventoryService(s.store, logger), logger)
	s.server = NewGRPCServer(h, s.authn)
	s.listener = bufconn.Listen(bufSize)
	go s.server.Serve(s.listener)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	s.conn = conn
	s.client = NewOrderServiceClient(conn)

	s.item, err = s.store.UpsertByName(context.Background(), domain.NewItem{
		Name: "Apples", Price: decimal.RequireFromString("2.50"), Stock: 10, Unit: "kg",
	})
	s.Require().NoError(err)
}

func (s *GRPCHandlerSuite) TearDownTest() {
	s.conn.Close()
	s.server.Stop()
	s.listener.Close()
	s.orders.Close()
}

func (s *GRPCHandlerSuite) ctxAs(user string, role domain.Role) context.Context {
	tok, err := s.authn.Issue(domain.Identity{UserID: user, Role: role})
	s.Require().NoError(err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func (s *GRPCHandlerSuite) requireCode(err error, want codes.Code) {
	st, ok := status.FromError(err)
	s.Require().True(ok, "expected gRPC status, got %v", err)
	s.Equal(want, st.Code(), st.Message())
}

func (s *GRPCHandlerSuite) TestPlaceAndGetOrder() {
	ctx := s.ctxAs("user1", domain.RoleUser)

	order, err := s.client.PlaceOrder(ctx, &PlaceOrderRPCRequest{
		Items: []OrderLineItem{{ItemID: s.item.ID, Quantity: 4}},
	})
	s.Require().NoError(err)
	s.Equal("10.00", order.TotalPrice)
	s.Equal("user1", order.UserID)

	got, err := s.client.GetOrder(ctx, &GetOrderRPCRequest{ID: order.ID})
	s.Require().NoError(err)
	s.Equal(order.ID, got.ID)

	_, err = s.client.GetOrder(s.ctxAs("user2", domain.RoleUser), &GetOrderRPCRequest{ID: order.ID})
	s.requireCode(err, codes.NotFound)
}

func (s *GRPCHandlerSuite) TestPlaceOrderErrors() {
	ctx := s.ctxAs("user1", domain.RoleUser)

	_, err := s.client.PlaceOrder(ctx, &PlaceOrderRPCRequest{})
	s.requireCode(err, codes.InvalidArgument)

	_, err = s.client.PlaceOrder(ctx, &PlaceOrderRPCRequest{Items: []OrderLineItem{{ItemID: s.item.ID, Quantity: 11}}})
	s.requireCode(err, codes.FailedPrecondition)

	_, err = s.client.PlaceOrder(ctx, &PlaceOrderRPCRequest{Items: []OrderLineItem{{ItemID: "missing", Quantity: 1}}})
	s.requireCode(err, codes.NotFound)
}

func (s *GRPCHandlerSuite) TestAuthentication() {
	_, err := s.client.PlaceOrder(context.Background(), &PlaceOrderRPCRequest{
		Items: []OrderLineItem{{ItemID: s.item.ID, Quantity: 1}},
	})
	s.requireCode(err, codes.Unauthenticated)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer forged")
	_, err = s.client.GetOrder(ctx, &GetOrderRPCRequest{ID: "x"})
	s.requireCode(err, codes.Unauthenticated)
}

func (s *GRPCHandlerSuite) TestAdjustStockRequiresAdmin() {
	req := &AdjustStockRPCRequest{ItemID: s.item.ID, Action: "increase", Amount: 5}

	_, err := s.client.AdjustStock(s.ctxAs("user1", domain.RoleUser), req)
	s.requireCode(err, codes.PermissionDenied)

	item, err := s.client.AdjustStock(s.ctxAs("admin", domain.RoleAdmin), req)
	s.Require().NoError(err)
	s.Equal(15, item.Stock)
}

func (s *GRPCHandlerSuite) TestMalformedRequestIsInvalidArgument() {
	ctx := s.ctxAs("user1", domain.RoleUser)
	var out OrderResponse
	err := s.conn.Invoke(ctx, fullMethod("PlaceOrder"),
		map[string]any{"items": []map[string]any{{"itemId": s.item.ID, "quantity": 1.5}}},
		&out, grpc.CallContentSubtype(CodecName))
	s.requireCode(err, codes.InvalidArgument)

	item, err := s.store.GetItem(context.Background(), s.item.ID)
	s.Require().NoError(err)
	s.Equal(10, item.Stock)
}

func (s *GRPCHandlerSuite) TestAdjustStockRejectsOverflow() {
	_, err := s.client.AdjustStock(s.ctxAs("admin", domain.RoleAdmin),
		&AdjustStockRPCRequest{ItemID: s.item.ID, Action: "increase", Amount: math.MaxInt})
	s.requireCode(err, codes.InvalidArgument)
}

func TestGRPCHandlerSuite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	suite.Run(t, new(GRPCHandlerSuite))
}
