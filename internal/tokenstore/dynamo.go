package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jonboulle/clockwork"
	"github.com/mkondo/driveman/internal/crypto"
	"github.com/mkondo/driveman/internal/model"
)

// DynamoClient is the subset of *dynamodb.Client used by DynamoStore.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore persists the credential record in a DynamoDB table, used when
// the service runs as a Lambda and has no durable filesystem.
type DynamoStore struct {
	client    DynamoClient
	tableName string
	encryptor crypto.Encryptor
	clock     clockwork.Clock
}

type dynamoRecord struct {
	RecordID              string `dynamodbav:"record_id"`
	AccessToken           string `dynamodbav:"access_token"`
	ExpiresAt             int64  `dynamodbav:"expires_at"`
	EncryptedRefreshToken string `dynamodbav:"encrypted_refresh_token"`
	UpdatedAt             string `dynamodbav:"updated_at"`
}

// NewDynamoStore creates a DynamoStore on the given table.
func NewDynamoStore(client DynamoClient, tableName string, encryptor crypto.Encryptor, clock clockwork.Clock) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		encryptor: encryptor,
		clock:     clock,
	}
}

func (s *DynamoStore) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"record_id": &types.AttributeValueMemberS{Value: StorageKey},
	}
}

func (s *DynamoStore) read(ctx context.Context) (*dynamoRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(),
	})
	if err != nil {
		return nil, fmt.Errorf("get credential item: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		// A record this code cannot decode is treated as absent.
		return nil, nil
	}
	return &rec, nil
}

func (s *DynamoStore) Load(ctx context.Context) (*model.Credential, error) {
	rec, err := s.read(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	cred := model.Credential{
		AccessToken:           rec.AccessToken,
		ExpiresAt:             rec.ExpiresAt,
		EncryptedRefreshToken: rec.EncryptedRefreshToken,
	}
	if !cred.Valid(s.clock.Now()) {
		return nil, nil
	}
	return &cred, nil
}

func (s *DynamoStore) RefreshToken(ctx context.Context) (string, error) {
	rec, err := s.read(ctx)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.EncryptedRefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	token, err := s.encryptor.Decrypt(ctx, rec.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token: %w", err)
	}
	return token, nil
}

func (s *DynamoStore) Save(ctx context.Context, cred model.Credential, refreshToken string) error {
	encrypted := ""
	if refreshToken != "" {
		var err error
		encrypted, err = s.encryptor.Encrypt(ctx, refreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	} else if existing, err := s.read(ctx); err == nil && existing != nil {
		encrypted = existing.EncryptedRefreshToken
	}

	item, err := attributevalue.MarshalMap(dynamoRecord{
		RecordID:              StorageKey,
		AccessToken:           cred.AccessToken,
		ExpiresAt:             cred.ExpiresAt,
		EncryptedRefreshToken: encrypted,
		UpdatedAt:             s.clock.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal credential record: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put credential item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Clear(ctx context.Context) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(),
	}); err != nil {
		return fmt.Errorf("delete credential item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	if _, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(),
	}); err != nil {
		return fmt.Errorf("token table unavailable: %w", err)
	}
	return nil
}
