package dynamo

import (
	"context"
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/jacentio/occ/store"
)

// mapError converts a DynamoDB error into a *store.StatusError.
func (s *Store) mapError(op string, err error) error {
	mapped := mapError(op, err)
	if mapped != nil && store.StatusOf(mapped) == store.StatusInternal {
		s.config.Logger.Warn("Unclassified DynamoDB error",
			zap.String("op", op),
			zap.String("table", s.config.TableName),
			zap.Error(err))
	}
	return mapped
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return store.NewError(store.StatusUnavailable, op, err)
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		switch {
		case op == store.OpCreate:
			return store.NewError(store.StatusConflict, op, store.ErrConflict)
		case len(condErr.Item) == 0:
			// attribute_exists(pk) failed
			return store.NewError(store.StatusNotFound, op, store.ErrNotFound)
		default:
			return store.NewError(store.StatusPreconditionFailed, op, store.ErrPreconditionFailed)
		}
	}

	var throughputErr *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughputErr) {
		return store.NewError(store.StatusTooManyRequests, op, err)
	}
	var limitErr *types.RequestLimitExceeded
	if errors.As(err, &limitErr) {
		return store.NewError(store.StatusTooManyRequests, op, err)
	}
	var tableErr *types.ResourceNotFoundException
	if errors.As(err, &tableErr) {
		// The table is missing; the document's absence is unknown.
		return store.NewError(store.StatusInternal, op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException", "MissingAuthenticationToken":
			return store.NewError(store.StatusForbidden, op, err)
		case "ValidationException", "SerializationException":
			return store.NewError(store.StatusBadRequest, op, err)
		case "ThrottlingException":
			return store.NewError(store.StatusTooManyRequests, op, err)
		case "TransactionConflictException", "ServiceUnavailable":
			return store.NewError(store.StatusUnavailable, op, err)
		}
	}

	if status, ok := httpStatusCode(err); ok {
		switch {
		case status == http.StatusBadRequest:
			return store.NewError(store.StatusBadRequest, op, err)
		case status == http.StatusForbidden:
			return store.NewError(store.StatusForbidden, op, err)
		case status == http.StatusTooManyRequests:
			return store.NewError(store.StatusTooManyRequests, op, err)
		case status == http.StatusServiceUnavailable:
			return store.NewError(store.StatusUnavailable, op, err)
		}
	}

	return store.NewError(store.StatusInternal, op, err)
}

func httpStatusCode(err error) (int, bool) {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode(), true
	}
	return 0, false
}
