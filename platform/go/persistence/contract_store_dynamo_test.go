package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type mockDynamo struct {
	putFn    func(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateFn func(ctx context.Context, in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	getFn    func(ctx context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putFn == nil {
		panic("putFn not configured")
	}
	return m.putFn(ctx, in)
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, in)
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, in)
}

func sampleRecord() ContractRecord {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return ContractRecord{
		PropertyID:     "P1",
		ContractID:     "8c5f4cbb-7a3a-4a51-9d53-0c4cf5c1b5a0",
		Address:        "1 Main St",
		SellerName:     "Jane",
		Status:         "DRAFT",
		CreatedAt:      now,
		LastModifiedOn: now,
	}
}

func TestDynamoPutBuildsTerminalCondition(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	client := &mockDynamo{putFn: func(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		require.Equal(t, "contracts-table", aws.ToString(in.TableName))
		require.Equal(t, "attribute_not_exists(property_id) OR contract_status IN (:s0, :s1, :s2)", aws.ToString(in.ConditionExpression))
		require.Equal(t, &types.AttributeValueMemberS{Value: "CANCELLED"}, in.ExpressionAttributeValues[":s0"])
		require.Equal(t, &types.AttributeValueMemberS{Value: "EXPIRED"}, in.ExpressionAttributeValues[":s2"])
		require.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, in.ReturnValuesOnConditionCheckFailure)

		var item ContractRecord
		require.NoError(t, attributevalue.UnmarshalMap(in.Item, &item))
		require.Equal(t, rec, item)
		return &dynamodb.PutItemOutput{}, nil
	}}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	stored, err := store.PutIfAbsentOrTerminal(context.Background(), rec, terminalStatuses)
	require.NoError(t, err)
	require.Equal(t, rec, stored)
}

func TestDynamoPutConditionFailureReportsCurrentStatus(t *testing.T) {
	t.Parallel()

	client := &mockDynamo{putFn: func(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		return nil, &types.ConditionalCheckFailedException{
			Message: aws.String("The conditional request failed"),
			Item: map[string]types.AttributeValue{
				"property_id":     &types.AttributeValueMemberS{Value: "P1"},
				"contract_status": &types.AttributeValueMemberS{Value: "APPROVED"},
			},
		}
	}}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	_, err = store.PutIfAbsentOrTerminal(context.Background(), sampleRecord(), terminalStatuses)
	require.ErrorIs(t, err, ErrContractConditionFailed)

	var condErr *ConditionError
	require.True(t, errors.As(err, &condErr))
	require.True(t, condErr.Exists)
	require.Equal(t, "APPROVED", condErr.CurrentStatus)
}

func TestDynamoPutInfrastructureError(t *testing.T) {
	t.Parallel()

	client := &mockDynamo{putFn: func(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException", Message: "slow down"}
	}}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	_, err = store.PutIfAbsentOrTerminal(context.Background(), sampleRecord(), terminalStatuses)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrContractConditionFailed)
	require.Contains(t, err.Error(), "ProvisionedThroughputExceededException")
}

func getItemReturning(t *testing.T, rec ContractRecord) func(ctx context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	t.Helper()

	return func(ctx context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		require.True(t, aws.ToBool(in.ConsistentRead))
		item, err := attributevalue.MarshalMap(rec)
		require.NoError(t, err)
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
}

func TestDynamoUpdateRequiresExpectedStatus(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	modified := rec.CreatedAt.Add(time.Minute)
	client := &mockDynamo{
		getFn: getItemReturning(t, rec),
		updateFn: func(ctx context.Context, in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			require.Equal(t, &types.AttributeValueMemberS{Value: "P1"}, in.Key["property_id"])
			require.Equal(t, "attribute_exists(property_id) AND contract_status = :expected AND contract_last_modified_on = :previous", aws.ToString(in.ConditionExpression))
			require.Equal(t, &types.AttributeValueMemberS{Value: "DRAFT"}, in.ExpressionAttributeValues[":expected"])
			require.Equal(t, &types.AttributeValueMemberS{Value: "APPROVED"}, in.ExpressionAttributeValues[":status"])
			require.Equal(t, types.ReturnValueAllNew, in.ReturnValues)

			var previous time.Time
			require.NoError(t, attributevalue.Unmarshal(in.ExpressionAttributeValues[":previous"], &previous))
			require.True(t, rec.LastModifiedOn.Equal(previous))

			updated := rec
			updated.Status = "APPROVED"
			updated.LastModifiedOn = modified
			attrs, err := attributevalue.MarshalMap(updated)
			require.NoError(t, err)
			return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
		},
	}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	updated, err := store.UpdateIfCurrentStatus(context.Background(), "P1", "DRAFT", StatusUpdate{Status: "APPROVED", LastModifiedOn: modified})
	require.NoError(t, err)
	require.Equal(t, "APPROVED", updated.Status)
	require.True(t, modified.Equal(updated.LastModifiedOn))
	require.Equal(t, rec.ContractID, updated.ContractID)
}

func TestDynamoUpdateKeepsModificationIncreasing(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	client := &mockDynamo{
		getFn: getItemReturning(t, rec),
		updateFn: func(ctx context.Context, in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			var modified time.Time
			require.NoError(t, attributevalue.Unmarshal(in.ExpressionAttributeValues[":modified"], &modified))
			require.True(t, rec.LastModifiedOn.Add(ModificationStep).Equal(modified))

			updated := rec
			updated.Status = "APPROVED"
			updated.LastModifiedOn = modified
			attrs, err := attributevalue.MarshalMap(updated)
			require.NoError(t, err)
			return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
		},
	}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	// A clock behind the stored value, as from another invocation.
	updated, err := store.UpdateIfCurrentStatus(context.Background(), "P1", "DRAFT", StatusUpdate{
		Status:         "APPROVED",
		LastModifiedOn: rec.LastModifiedOn.Add(-time.Second),
	})
	require.NoError(t, err)
	require.True(t, updated.LastModifiedOn.After(rec.LastModifiedOn))
}

func TestDynamoUpdateRejectsOtherStatusWithoutWriting(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.Status = "APPROVED"
	client := &mockDynamo{getFn: getItemReturning(t, rec)}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	_, err = store.UpdateIfCurrentStatus(context.Background(), "P1", "DRAFT", StatusUpdate{Status: "APPROVED", LastModifiedOn: time.Now()})

	var condErr *ConditionError
	require.True(t, errors.As(err, &condErr))
	require.True(t, condErr.Exists)
	require.Equal(t, "APPROVED", condErr.CurrentStatus)
}

func TestDynamoUpdateLosesRace(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	winner := rec
	winner.Status = "APPROVED"
	client := &mockDynamo{
		getFn: getItemReturning(t, rec),
		updateFn: func(ctx context.Context, in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			item, err := attributevalue.MarshalMap(winner)
			require.NoError(t, err)
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed"), Item: item}
		},
	}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	_, err = store.UpdateIfCurrentStatus(context.Background(), "P1", "DRAFT", StatusUpdate{Status: "APPROVED", LastModifiedOn: time.Now()})
	require.ErrorIs(t, err, ErrContractConditionFailed)

	var condErr *ConditionError
	require.True(t, errors.As(err, &condErr))
	require.Equal(t, "APPROVED", condErr.CurrentStatus)
}

func TestDynamoUpdateMissingItem(t *testing.T) {
	t.Parallel()

	client := &mockDynamo{getFn: func(ctx context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		return &dynamodb.GetItemOutput{}, nil
	}}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	_, err = store.UpdateIfCurrentStatus(context.Background(), "P9", "DRAFT", StatusUpdate{Status: "APPROVED", LastModifiedOn: time.Now()})

	var condErr *ConditionError
	require.True(t, errors.As(err, &condErr))
	require.False(t, condErr.Exists)
	require.Equal(t, "P9", condErr.PropertyID)
}

func TestDynamoGetContract(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	client := &mockDynamo{getFn: func(ctx context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		require.True(t, aws.ToBool(in.ConsistentRead))
		if in.Key["property_id"].(*types.AttributeValueMemberS).Value != rec.PropertyID {
			return &dynamodb.GetItemOutput{}, nil
		}
		item, err := attributevalue.MarshalMap(rec)
		require.NoError(t, err)
		return &dynamodb.GetItemOutput{Item: item}, nil
	}}

	store, err := NewDynamoContractStore(client, "contracts-table")
	require.NoError(t, err)

	got, err := store.GetContract(context.Background(), rec.PropertyID)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	_, err = store.GetContract(context.Background(), "other")
	require.ErrorIs(t, err, ErrContractNotFound)
}
