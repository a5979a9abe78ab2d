package repository

import (
	"context"
	"errors"
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

type reminderRepo struct {
	db *database.DynamoDBClient
}

func NewReminderRepository(db *database.DynamoDBClient) ReminderRepository {
	return &reminderRepo{db: db}
}

func reminderKey(guildID, userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: models.GuildPK(guildID)},
		"SK": &types.AttributeValueMemberS{Value: models.ReminderSK(userID)},
	}
}

func (r *reminderRepo) Get(ctx context.Context, guildID, userID string) (*models.Reminder, error) {
	result, err := r.db.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.db.Table()),
		Key:       reminderKey(guildID, userID),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get reminder")
	}

	if result.Item == nil {
		return nil, nil
	}

	var reminder models.Reminder
	if err := attributevalue.UnmarshalMap(result.Item, &reminder); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal reminder")
	}
	return &reminder, nil
}

// Create overwrites a notified reminder so users can ask again after being notified.
func (r *reminderRepo) Create(ctx context.Context, reminder *models.Reminder) error {
	reminder.PK = models.GuildPK(reminder.GuildID)
	reminder.SK = models.ReminderSK(reminder.UserID)
	reminder.Notified = false
	reminder.NotifiedAt = nil

	item, err := attributevalue.MarshalMap(reminder)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal reminder")
	}

	_, err = r.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR notified = :true"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return scrimserrors.ReminderExistsError()
		}
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create reminder")
	}
	return nil
}

func (r *reminderRepo) ListPending(ctx context.Context, guildID string) ([]*models.Reminder, error) {
	paginator := dynamodb.NewQueryPaginator(r.db.Client, &dynamodb.QueryInput{
		TableName:              aws.String(r.db.Table()),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		FilterExpression:       aws.String("notified = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    &types.AttributeValueMemberS{Value: models.GuildPK(guildID)},
			":sk":    &types.AttributeValueMemberS{Value: models.ReminderSKPrefix()},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})

	var reminders []*models.Reminder
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list reminders")
		}
		for _, item := range page.Items {
			var reminder models.Reminder
			if err := attributevalue.UnmarshalMap(item, &reminder); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal reminder")
			}
			reminders = append(reminders, &reminder)
		}
	}
	return reminders, nil
}

func (r *reminderRepo) ListPendingGuilds(ctx context.Context) ([]string, error) {
	paginator := dynamodb.NewScanPaginator(r.db.Client, &dynamodb.ScanInput{
		TableName:            aws.String(r.db.Table()),
		FilterExpression:     aws.String("begins_with(SK, :sk) AND notified = :false"),
		ProjectionExpression: aws.String("guild_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk":    &types.AttributeValueMemberS{Value: models.ReminderSKPrefix()},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})

	seen := make(map[string]bool)
	var guilds []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to scan reminders")
		}
		for _, item := range page.Items {
			var reminder models.Reminder
			if err := attributevalue.UnmarshalMap(item, &reminder); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal reminder")
			}
			if !seen[reminder.GuildID] {
				seen[reminder.GuildID] = true
				guilds = append(guilds, reminder.GuildID)
			}
		}
	}
	return guilds, nil
}

func (r *reminderRepo) MarkNotified(ctx context.Context, guildID, userID string, at time.Time) (bool, error) {
	_, err := r.db.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.db.Table()),
		Key:              reminderKey(guildID, userID),
		UpdateExpression: aws.String("SET notified = :true, notified_at = :at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":at":    &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(PK) AND notified = :false"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to mark reminder notified")
	}
	return true, nil
}
