package repository

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/scrimx/scrims/common/database"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
)

type settingsRepo struct {
	db *database.DynamoDBClient
}

func NewSettingsRepository(db *database.DynamoDBClient) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	result, err := r.db.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.db.Table()),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: models.GuildPK(guildID)},
			"SK": &types.AttributeValueMemberS{Value: models.GuildSettingsSK()},
		},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get guild settings")
	}

	if result.Item == nil {
		return nil, nil
	}

	var settings models.GuildSettings
	if err := attributevalue.UnmarshalMap(result.Item, &settings); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal guild settings")
	}
	return &settings, nil
}

func (r *settingsRepo) Upsert(ctx context.Context, settings *models.GuildSettings) error {
	settings.PK = models.GuildPK(settings.GuildID)
	settings.SK = models.GuildSettingsSK()
	now := time.Now().UTC()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	item, err := attributevalue.MarshalMap(settings)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal guild settings")
	}

	if _, err := r.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.db.Table()),
		Item:      item,
	}); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save guild settings")
	}
	return nil
}
