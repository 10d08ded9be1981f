package storage

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"board-api/domain"
)

// mapError translates Azure responses onto the domain error taxonomy:
// missing rows become ErrNotFound, write races become ConflictError and
// everything else transient becomes ErrStoreUnavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.NewConflict("write", respErr.ErrorCode, "row already exists")
	case http.StatusPreconditionFailed:
		return domain.NewConflict("write", respErr.ErrorCode, "row changed concurrently")
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}
