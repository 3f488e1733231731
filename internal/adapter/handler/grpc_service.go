package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/grocery-store/internal/core/domain"
)

// Messages travel as JSON through a registered codec, so the service needs no
// generated stubs. Clients select it with grpc.CallContentSubtype(CodecName).
const CodecName = "json"

const orderServiceName = "grocery.v1.OrderService"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type PlaceOrderRPCRequest struct {
	RequestID string          `json:"requestId,omitempty"`
	Items     []OrderLineItem `json:"items"`
}

type OrderLineItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type GetOrderRPCRequest struct {
	ID string `json:"id"`
}

type AdjustStockRPCRequest struct {
	ItemID string `json:"itemId"`
	Action string `json:"action"`
	Amount int    `json:"amount"`
}

type OrderServiceServer interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRPCRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderResponse, error)
	AdjustStock(ctx context.Context, req *AdjustStockRPCRequest) (*GroceryResponse, error)
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("PlaceOrder", OrderServiceServer.PlaceOrder),
		unaryMethod("GetOrder", OrderServiceServer.GetOrder),
		unaryMethod("AdjustStock", OrderServiceServer.AdjustStock),
	},
	Streams: []grpc.StreamDesc{},
}

func fullMethod(name string) string {
	return "/" + orderServiceName + "/" + name
}

func unaryMethod[Req, Resp any](name string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Error(codes.InvalidArgument, string(domain.CodeValidation)+": malformed request: "+err.Error())
			}
			if interceptor == nil {
				return call(srv.(OrderServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(OrderServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// OrderServiceClient calls grocery.v1.OrderService over conn.
type OrderServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewOrderServiceClient(conn grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{conn: conn}
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRPCRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "PlaceOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRPCRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "GetOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) AdjustStock(ctx context.Context, in *AdjustStockRPCRequest, opts ...grpc.CallOption) (*GroceryResponse, error) {
	out := new(GroceryResponse)
	if err := c.invoke(ctx, "AdjustStock", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.conn.Invoke(ctx, fullMethod(method), in, out, opts...)
}
