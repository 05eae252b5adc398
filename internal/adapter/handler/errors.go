package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const internalErrorMessage = "internal server error"

// httpError maps a service error to a status code and a client-safe message.
func httpError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway, "product catalog unavailable"
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrExternalService):
		return status.Error(codes.Unavailable, "product catalog unavailable")
	default:
		return status.Error(codes.Internal, internalErrorMessage)
	}
}
