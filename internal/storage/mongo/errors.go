package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"news_provisioner/internal/domain"
)

// Server error codes the provisioner distinguishes.
const (
	codeUnauthorized          = 13
	codeAuthenticationFailed  = 18
	codeNamespaceExists       = 48
	codeIndexAlreadyExists    = 68
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeDuplicateUser         = 51003
)

// classify maps driver errors onto the domain error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		switch {
		case se.HasErrorCode(codeUnauthorized):
			return fmt.Errorf("%w: %w", domain.ErrPermission, err)
		case se.HasErrorCode(codeAuthenticationFailed):
			return fmt.Errorf("%w: %w", domain.ErrConnection, err)
		case se.HasErrorCode(codeIndexOptionsConflict),
			se.HasErrorCode(codeIndexKeySpecsConflict),
			se.HasErrorCode(codeIndexAlreadyExists):
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		case se.HasErrorCode(codeNamespaceExists), se.HasErrorCode(codeDuplicateUser):
			return fmt.Errorf("%w: %w", domain.ErrAlreadyExists, err)
		}
		return err
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}

	return err
}
