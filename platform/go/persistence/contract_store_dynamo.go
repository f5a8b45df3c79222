package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoContractStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoContractStore keeps contracts in a DynamoDB table keyed by property_id.
// Condition expressions evaluated by DynamoDB are the only synchronization between writers.
type DynamoContractStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoContractStore binds the store to an existing table.
func NewDynamoContractStore(client DynamoAPI, table string) (*DynamoContractStore, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("table name is required")
	}
	return &DynamoContractStore{client: client, table: table}, nil
}

// PutIfAbsentOrTerminal writes rec unless an item exists whose status is not in replaceable.
func (s *DynamoContractStore) PutIfAbsentOrTerminal(ctx context.Context, rec ContractRecord, replaceable []string) (ContractRecord, error) {
	if err := validateRecordForPut(rec); err != nil {
		return ContractRecord{}, err
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return ContractRecord{}, fmt.Errorf("marshal contract item: %w", err)
	}

	condition := "attribute_not_exists(property_id)"
	var values map[string]types.AttributeValue
	if len(replaceable) > 0 {
		values = make(map[string]types.AttributeValue, len(replaceable))
		placeholders := make([]string, 0, len(replaceable))
		for i, status := range replaceable {
			key := fmt.Sprintf(":s%d", i)
			placeholders = append(placeholders, key)
			values[key] = &types.AttributeValueMemberS{Value: status}
		}
		condition += " OR contract_status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(s.table),
		Item:                                item,
		ConditionExpression:                 aws.String(condition),
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if condErr, ok := conditionFailure(rec.PropertyID, err); ok {
			return ContractRecord{}, condErr
		}
		return ContractRecord{}, wrapDynamoError("put contract item", err)
	}

	return rec, nil
}

// UpdateIfCurrentStatus sets the status and modification time when the stored status equals expected.
//
// The item is read first so the new modification time can be kept after the stored one; the write is
// then conditioned on both the expected status and the exact modification value that was read.
func (s *DynamoContractStore) UpdateIfCurrentStatus(ctx context.Context, propertyID, expected string, update StatusUpdate) (ContractRecord, error) {
	if propertyID == "" {
		return ContractRecord{}, errors.New("property id is required")
	}
	if update.Status == "" || update.LastModifiedOn.IsZero() {
		return ContractRecord{}, errors.New("status and modification time are required")
	}

	current, err := s.GetContract(ctx, propertyID)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return ContractRecord{}, &ConditionError{PropertyID: propertyID}
		}
		return ContractRecord{}, err
	}
	if current.Status != expected {
		return ContractRecord{}, &ConditionError{PropertyID: propertyID, CurrentStatus: current.Status, Exists: true}
	}

	previous, err := attributevalue.Marshal(current.LastModifiedOn)
	if err != nil {
		return ContractRecord{}, fmt.Errorf("marshal previous modification time: %w", err)
	}
	modified, err := attributevalue.Marshal(NextModification(current.LastModifiedOn, update.LastModifiedOn))
	if err != nil {
		return ContractRecord{}, fmt.Errorf("marshal modification time: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"property_id": &types.AttributeValueMemberS{Value: propertyID},
		},
		UpdateExpression:    aws.String("SET contract_status = :status, contract_last_modified_on = :modified"),
		ConditionExpression: aws.String("attribute_exists(property_id) AND contract_status = :expected AND contract_last_modified_on = :previous"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: update.Status},
			":modified": modified,
			":expected": &types.AttributeValueMemberS{Value: expected},
			":previous": previous,
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if condErr, ok := conditionFailure(propertyID, err); ok {
			return ContractRecord{}, condErr
		}
		return ContractRecord{}, wrapDynamoError("update contract item", err)
	}

	var rec ContractRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return ContractRecord{}, fmt.Errorf("unmarshal contract item: %w", err)
	}
	return rec, nil
}

// GetContract performs a strongly consistent read of the item for propertyID.
func (s *DynamoContractStore) GetContract(ctx context.Context, propertyID string) (ContractRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"property_id": &types.AttributeValueMemberS{Value: propertyID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ContractRecord{}, wrapDynamoError("get contract item", err)
	}
	if len(out.Item) == 0 {
		return ContractRecord{}, ErrContractNotFound
	}

	var rec ContractRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return ContractRecord{}, fmt.Errorf("unmarshal contract item: %w", err)
	}
	return rec, nil
}

func conditionFailure(propertyID string, err error) (*ConditionError, bool) {
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return nil, false
	}

	condErr := &ConditionError{PropertyID: propertyID}
	if len(ccf.Item) > 0 {
		condErr.Exists = true
		if v, ok := ccf.Item["contract_status"].(*types.AttributeValueMemberS); ok {
			condErr.CurrentStatus = v.Value
		}
	}
	return condErr, true
}

func wrapDynamoError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
