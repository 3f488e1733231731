package handler

import (
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/grocery-store/internal/core/domain"
)

func httpStatus(code domain.Code) int {
	switch code {
	case domain.CodeValidation, domain.CodeInvalidQuantity, domain.CodeEmptyOrder:
		return http.StatusBadRequest
	case domain.CodeNotFound, domain.CodeItemNotFound:
		return http.StatusNotFound
	case domain.CodeInsufficientStock, domain.CodeDuplicateRequest:
		return http.StatusConflict
	case domain.CodeUnauthenticated, domain.CodeSessionExpired, domain.CodeInvalidCredential:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(code domain.Code) codes.Code {
	switch code {
	case domain.CodeValidation, domain.CodeInvalidQuantity, domain.CodeEmptyOrder:
		return codes.InvalidArgument
	case domain.CodeNotFound, domain.CodeItemNotFound:
		return codes.NotFound
	case domain.CodeInsufficientStock:
		return codes.FailedPrecondition
	case domain.CodeDuplicateRequest:
		return codes.AlreadyExists
	case domain.CodeUnauthenticated, domain.CodeSessionExpired, domain.CodeInvalidCredential:
		return codes.Unauthenticated
	case domain.CodeForbidden:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// toDomainError never returns nil. Errors outside the domain taxonomy become
// the generic transaction error.
func toDomainError(err error) *domain.Error {
	if de, ok := domain.AsError(err); ok {
		return de
	}
	return domain.ErrTransaction
}
