package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

type GRPCHandler struct {
	inventory InventoryService
	purchases PurchaseService
}

var _ InventoryServer = (*GRPCHandler)(nil)

func NewGRPCHandler(inventory InventoryService, purchases PurchaseService) *GRPCHandler {
	return &GRPCHandler{inventory: inventory, purchases: purchases}
}

func (h *GRPCHandler) GetInventory(ctx context.Context, req *GetInventoryRequest) (*InventoryReply, error) {
	view, err := h.inventory.GetByProduct(ctx, req.ProductID)
	if err != nil {
		return nil, grpcError(err)
	}

	return &InventoryReply{
		ProductID:   req.ProductID,
		Quantity:    int32(view.Inventory.Quantity),
		Name:        view.Product.Name,
		Price:       view.Product.Price,
		Description: view.Product.Description,
	}, nil
}

func (h *GRPCHandler) SetInventoryQuantity(ctx context.Context, req *SetInventoryQuantityRequest) (*SetInventoryQuantityReply, error) {
	rec, err := h.inventory.SetQuantity(ctx, req.ProductID, int(req.Quantity))
	if err != nil {
		return nil, grpcError(err)
	}

	return &SetInventoryQuantityReply{ProductID: rec.ProductID, Quantity: int32(rec.Quantity)}, nil
}

func (h *GRPCHandler) ProcessPurchase(ctx context.Context, req *ProcessPurchaseRequest) (*PurchaseReply, error) {
	rec, err := h.purchases.ProcessPurchase(ctx, req.ProductID, int(req.Quantity))
	if err != nil {
		return nil, grpcError(err)
	}

	return &PurchaseReply{
		ID:        rec.ID,
		ProductID: rec.ProductID,
		Quantity:  int32(rec.Quantity),
		CreatedAt: rec.CreatedAt,
		Message:   purchaseCreatedMessage,
	}, nil
}

// UnaryLoggingInterceptor logs every unary call with its status code.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	logger = logger.Named("grpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}
