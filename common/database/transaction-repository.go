package database

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	apperrors "github.com/scrimx/scrims/common/errors"
)

// TransactionRepository runs multi-item writes, such as removing every scrims of a guild, as one
// all-or-nothing DynamoDB transaction.
type TransactionRepository interface {
	Execute(ctx context.Context, transactionBuilder *TransactionBuilder) error
}

type transactionRepo struct {
	db *DynamoDBClient
}

func NewTransactionRepository(db *DynamoDBClient) TransactionRepository {
	return &transactionRepo{db: db}
}

// Execute is a no-op for an empty builder. A transaction cancelled by a failed condition or a
// concurrent write comes back as CodeConflict so callers can retry it.
func (r *transactionRepo) Execute(ctx context.Context, transactionBuilder *TransactionBuilder) error {
	if transactionBuilder == nil || transactionBuilder.Count() == 0 {
		return nil
	}

	err := transactionBuilder.Execute(ctx, r.db.Client)
	if err == nil {
		return nil
	}

	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		return apperrors.Wrap(err, apperrors.CodeConflict, "transaction cancelled")
	}
	return err
}
