package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MaxTransactItems is the DynamoDB cap on items in one TransactWriteItems call.
const MaxTransactItems = 100

type TransactionBuilder struct {
	items []types.TransactWriteItem
	limit int
}

func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{
		items: make([]types.TransactWriteItem, 0),
		limit: MaxTransactItems,
	}
}

func (tb *TransactionBuilder) add(item types.TransactWriteItem) error {
	if len(tb.items) >= tb.limit {
		return fmt.Errorf("transaction limit exceeded: %d items", tb.limit)
	}
	tb.items = append(tb.items, item)
	return nil
}

func (tb *TransactionBuilder) AddPut(item types.Put) error {
	return tb.add(types.TransactWriteItem{Put: &item})
}

func (tb *TransactionBuilder) AddUpdate(item types.Update) error {
	return tb.add(types.TransactWriteItem{Update: &item})
}

func (tb *TransactionBuilder) AddDelete(item types.Delete) error {
	return tb.add(types.TransactWriteItem{Delete: &item})
}

func (tb *TransactionBuilder) Full() bool {
	return len(tb.items) >= tb.limit
}

func (tb *TransactionBuilder) Count() int {
	return len(tb.items)
}

func (tb *TransactionBuilder) Items() []types.TransactWriteItem {
	return tb.items
}

func (tb *TransactionBuilder) Execute(ctx context.Context, client *dynamodb.Client) error {
	if len(tb.items) == 0 {
		return fmt.Errorf("no items in transaction")
	}

	_, err := client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: tb.items,
	})
	return err
}
