package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/scrimx/scrims/common/database"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
	scrimserrors "github.com/scrimx/scrims/services/scrims-service/internal/errors"
)

type scrimsRepo struct {
	db           *database.DynamoDBClient
	transactions database.TransactionRepository
}

func NewScrimsRepository(db *database.DynamoDBClient, transactions database.TransactionRepository) ScrimsRepository {
	return &scrimsRepo{db: db, transactions: transactions}
}

func scrimsKey(scrimsID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: models.ScrimsPK(scrimsID)},
		"SK": &types.AttributeValueMemberS{Value: models.ScrimsMetaSK()},
	}
}

func setScrimsKeys(s *models.Scrims) {
	s.PK = models.ScrimsPK(s.ScrimsID)
	s.SK = models.ScrimsMetaSK()
	s.GSI1PK = models.GuildGSI1PK(s.GuildID)
	s.GSI1SK = models.ScrimsGSI1SK(s.ScrimsID)
}

func (r *scrimsRepo) Create(ctx context.Context, scrims *models.Scrims) error {
	setScrimsKeys(scrims)
	now := time.Now().UTC()
	scrims.CreatedAt = now
	scrims.UpdatedAt = now
	scrims.Version = 1

	item, err := attributevalue.MarshalMap(scrims)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal scrims")
	}

	_, err = r.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.New(apperrors.CodeAlreadyExists, "scrims already exists")
		}
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create scrims")
	}

	return nil
}

func (r *scrimsRepo) GetByID(ctx context.Context, scrimsID string) (*models.Scrims, error) {
	result, err := r.db.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.db.Table()),
		Key:            scrimsKey(scrimsID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get scrims")
	}

	if result.Item == nil {
		return nil, scrimserrors.ScrimsNotFoundError(scrimsID)
	}

	var scrims models.Scrims
	if err := attributevalue.UnmarshalMap(result.Item, &scrims); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal scrims")
	}

	return &scrims, nil
}

func (r *scrimsRepo) ListByGuild(ctx context.Context, guildID string) ([]*models.Scrims, error) {
	paginator := dynamodb.NewQueryPaginator(r.db.Client, &dynamodb.QueryInput{
		TableName:              aws.String(r.db.Table()),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND begins_with(GSI1SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: models.GuildGSI1PK(guildID)},
			":sk": &types.AttributeValueMemberS{Value: models.ScrimsGSI1SKPrefix()},
		},
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list guild scrims")
		}
		items = append(items, page.Items...)
	}

	return unmarshalScrims(items)
}

func (r *scrimsRepo) ListAll(ctx context.Context) ([]*models.Scrims, error) {
	paginator := dynamodb.NewScanPaginator(r.db.Client, &dynamodb.ScanInput{
		TableName:        aws.String(r.db.Table()),
		FilterExpression: aws.String("SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": &types.AttributeValueMemberS{Value: models.ScrimsMetaSK()},
		},
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to scan scrims")
		}
		items = append(items, page.Items...)
	}

	return unmarshalScrims(items)
}

func unmarshalScrims(items []map[string]types.AttributeValue) ([]*models.Scrims, error) {
	out := make([]*models.Scrims, 0, len(items))
	for _, item := range items {
		var scrims models.Scrims
		if err := attributevalue.UnmarshalMap(item, &scrims); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal scrims")
		}
		out = append(out, &scrims)
	}
	return out, nil
}

func (r *scrimsRepo) Update(ctx context.Context, scrims *models.Scrims) error {
	expected := scrims.Version
	setScrimsKeys(scrims)
	scrims.Version = expected + 1
	scrims.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(scrims)
	if err != nil {
		scrims.Version = expected
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal scrims")
	}

	_, err = r.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		},
	})
	if err != nil {
		scrims.Version = expected
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return scrimserrors.VersionConflictError(scrims.ScrimsID)
		}
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update scrims")
	}

	return nil
}

func (r *scrimsRepo) Delete(ctx context.Context, scrimsID string) error {
	_, err := r.db.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.db.Table()),
		Key:       scrimsKey(scrimsID),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete scrims")
	}
	return nil
}

// DeleteByGuild removes all of a guild's scrims, one transaction per batch of MaxTransactItems.
func (r *scrimsRepo) DeleteByGuild(ctx context.Context, guildID string) (int, error) {
	all, err := r.ListByGuild(ctx, guildID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	tb := database.NewTransactionBuilder()
	flush := func() error {
		if tb.Count() == 0 {
			return nil
		}
		if err := r.transactions.Execute(ctx, tb); err != nil {
			return apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to delete guild scrims")
		}
		deleted += tb.Count()
		tb = database.NewTransactionBuilder()
		return nil
	}

	for _, s := range all {
		if tb.Full() {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
		if err := tb.AddDelete(types.Delete{
			TableName: aws.String(r.db.Table()),
			Key:       scrimsKey(s.ScrimsID),
		}); err != nil {
			return deleted, fmt.Errorf("failed to queue scrims delete: %w", err)
		}
	}

	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}
