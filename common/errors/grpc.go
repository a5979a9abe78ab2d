package errors

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		code := mapErrorCodeToGRPC(appErr.Code)
		return status.Error(code, appErr.Message)
	}

	return status.Error(codes.Internal, err.Error())
}

func mapErrorCodeToGRPC(code string) codes.Code {
	switch code {
	case CodeNotFound:
		return codes.NotFound
	case CodeAlreadyExists, CodeDuplicateTeam, CodeReminderExists:
		return codes.AlreadyExists
	case CodeInvalidInput, CodeSlotOutOfRange:
		return codes.InvalidArgument
	case CodeForbidden, CodeNotSlotOwner:
		return codes.PermissionDenied
	case CodeConflict:
		return codes.Aborted
	case CodeSlotTaken, CodeNoSlotAvailable, CodeRegistrationClosed:
		return codes.FailedPrecondition
	case CodeServiceUnavailable, CodeCollaboratorError:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	return &AppError{
		Code:    mapGRPCToErrorCode(st.Code()),
		Message: st.Message(),
		Err:     err,
	}
}

func mapGRPCToErrorCode(code codes.Code) string {
	switch code {
	case codes.NotFound:
		return CodeNotFound
	case codes.AlreadyExists:
		return CodeAlreadyExists
	case codes.InvalidArgument, codes.FailedPrecondition:
		return CodeInvalidInput
	case codes.PermissionDenied:
		return CodeForbidden
	case codes.Aborted:
		return CodeConflict
	case codes.Unavailable:
		return CodeServiceUnavailable
	default:
		return CodeInternalServer
	}
}
