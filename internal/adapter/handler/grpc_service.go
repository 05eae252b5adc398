package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const inventoryServiceName = "inventory.v1.InventoryService"

type GetInventoryRequest struct {
	ProductID int64 `json:"productId"`
}

type InventoryReply struct {
	ProductID   int64   `json:"productId"`
	Quantity    int32   `json:"quantity"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type SetInventoryQuantityRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

type SetInventoryQuantityReply struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

type ProcessPurchaseRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

type PurchaseReply struct {
	ID        string    `json:"id"`
	ProductID int64     `json:"productId"`
	Quantity  int32     `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	Message   string    `json:"message"`
}

// InventoryServer is the server API of inventory.v1.InventoryService.
type InventoryServer interface {
	GetInventory(ctx context.Context, req *GetInventoryRequest) (*InventoryReply, error)
	SetInventoryQuantity(ctx context.Context, req *SetInventoryQuantityRequest) (*SetInventoryQuantityReply, error)
	ProcessPurchase(ctx context.Context, req *ProcessPurchaseRequest) (*PurchaseReply, error)
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&inventoryServiceDesc, srv)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: inventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInventory", Handler: unaryHandler("GetInventory",
			func(srv InventoryServer, ctx context.Context, req *GetInventoryRequest) (any, error) {
				return srv.GetInventory(ctx, req)
			})},
		{MethodName: "SetInventoryQuantity", Handler: unaryHandler("SetInventoryQuantity",
			func(srv InventoryServer, ctx context.Context, req *SetInventoryQuantityRequest) (any, error) {
				return srv.SetInventoryQuantity(ctx, req)
			})},
		{MethodName: "ProcessPurchase", Handler: unaryHandler("ProcessPurchase",
			func(srv InventoryServer, ctx context.Context, req *ProcessPurchaseRequest) (any, error) {
				return srv.ProcessPurchase(ctx, req)
			})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/inventory.proto",
}

func unaryHandler[Req any](method string, call func(InventoryServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	fullMethod := "/" + inventoryServiceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// InventoryClient calls inventory.v1.InventoryService using the JSON codec.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func (c *InventoryClient) GetInventory(ctx context.Context, req *GetInventoryRequest, opts ...grpc.CallOption) (*InventoryReply, error) {
	out := new(InventoryReply)
	if err := c.invoke(ctx, "GetInventory", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) SetInventoryQuantity(ctx context.Context, req *SetInventoryQuantityRequest, opts ...grpc.CallOption) (*SetInventoryQuantityReply, error) {
	out := new(SetInventoryQuantityReply)
	if err := c.invoke(ctx, "SetInventoryQuantity", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) ProcessPurchase(ctx context.Context, req *ProcessPurchaseRequest, opts ...grpc.CallOption) (*PurchaseReply, error) {
	out := new(PurchaseReply)
	if err := c.invoke(ctx, "ProcessPurchase", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) invoke(ctx context.Context, method string, req, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONContentSubtype)}, opts...)
	return c.cc.Invoke(ctx, "/"+inventoryServiceName+"/"+method, req, out, opts...)
}
