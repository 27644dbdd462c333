package conversation

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockDynamoDBClient struct {
	getItemFunc    func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	putItemFunc    func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	queryFunc      func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	updateItemFunc func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	deleteItemFunc func(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

func (m *mockDynamoDBClient) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFunc != nil {
		return m.getItemFunc(ctx, input, opts...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamoDBClient) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFunc != nil {
		return m.putItemFunc(ctx, input, opts...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDBClient) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoDBClient) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateItemFunc != nil {
		return m.updateItemFunc(ctx, input, opts...)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamoDBClient) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFunc != nil {
		return m.deleteItemFunc(ctx, input, opts...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func existingConvItem(version int64, unread int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":            &types.AttributeValueMemberS{Value: "CONV#phone-1#15550100"},
		"itemType":      &types.AttributeValueMemberS{Value: "CONVERSATION"},
		"wabaId":        &types.AttributeValueMemberS{Value: "waba-1"},
		"phoneRef":      &types.AttributeValueMemberS{Value: "phone-1"},
		"counterpartId": &types.AttributeValueMemberS{Value: "15550100"},
		"unreadCount":   &types.AttributeValueMemberN{Value: strconv.Itoa(unread)},
		"lastMessagePk": &types.AttributeValueMemberS{Value: "MSG#wamid.old"},
		"lastMessageAt": &types.AttributeValueMemberS{Value: "2026-01-15T09:00:00Z"},
		"updatedAt":     &types.AttributeValueMemberS{Value: "2026-01-15T09:00:00Z"},
		"version":       &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
	}
}

func testUpdate() MessageUpdate {
	return MessageUpdate{
		PhoneRef:      "phone-1",
		CounterpartID: "15550100",
		WabaID:        "waba-1",
		MessagePK:     "MSG#wamid.new",
		SentAt:        time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Inbound:       true,
	}
}

func TestRecordMessageCreatesOnFirstContact(t *testing.T) {
	var captured *dynamodb.PutItemInput
	mock := &mockDynamoDBClient{
		putItemFunc: func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = input
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	conv, err := repo.RecordMessage(context.Background(), testUpdate())
	if err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}

	if conv.Version != 1 {
		t.Errorf("Version = %d, want 1", conv.Version)
	}
	if conv.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", conv.UnreadCount)
	}
	if pk := captured.Item["pk"].(*types.AttributeValueMemberS).Value; pk != "CONV#phone-1#15550100" {
		t.Errorf("pk = %q", pk)
	}
}

func TestRecordMessageAdvancesWithCAS(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: existingConvItem(4, 2)}, nil
		},
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	conv, err := repo.RecordMessage(context.Background(), testUpdate())
	if err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}

	if conv.Version != 5 {
		t.Errorf("Version = %d, want 5", conv.Version)
	}
	if conv.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", conv.UnreadCount)
	}
	if conv.LastMessagePK != "MSG#wamid.new" {
		t.Errorf("LastMessagePK = %q", conv.LastMessagePK)
	}
	if cond := *captured.ConditionExpression; cond != "version = :current" {
		t.Errorf("ConditionExpression = %q", cond)
	}
	if cur := captured.ExpressionAttributeValues[":current"].(*types.AttributeValueMemberN).Value; cur != "4" {
		t.Errorf(":current = %q, want 4", cur)
	}
}

func TestRecordMessageRetriesOnceOnConflict(t *testing.T) {
	gets := 0
	updates := 0
	mock := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			gets++
			return &dynamodb.GetItemOutput{Item: existingConvItem(int64(3+gets), 0)}, nil
		},
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			updates++
			if updates == 1 {
				return nil, &types.ConditionalCheckFailedException{}
			}
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	if _, err := repo.RecordMessage(context.Background(), testUpdate()); err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	if updates != 2 {
		t.Errorf("UpdateItem called %d times, want 2", updates)
	}
}

func TestRecordMessagePersistentConflict(t *testing.T) {
	mock := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: existingConvItem(1, 0)}, nil
		},
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}

	repo := NewRepository(mock, "test-table")
	if _, err := repo.RecordMessage(context.Background(), testUpdate()); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("RecordMessage() error = %v, want ErrVersionConflict", err)
	}
}

func TestMarkReadResetsUnread(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoDBClient{
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	if err := repo.MarkRead(context.Background(), "phone-1", "15550100"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if zero := captured.ExpressionAttributeValues[":zero"].(*types.AttributeValueMemberN).Value; zero != "0" {
		t.Errorf(":zero = %q", zero)
	}
}

func TestMarkReadMissingConversation(t *testing.T) {
	mock := &mockDynamoDBClient{
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}

	repo := NewRepository(mock, "test-table")
	if err := repo.MarkRead(context.Background(), "phone-1", "nobody"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("MarkRead() error = %v, want ErrConversationNotFound", err)
	}
}

func TestListByWaba(t *testing.T) {
	var captured *dynamodb.QueryInput
	mock := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			captured = input
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{existingConvItem(2, 1)}}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	convs, err := repo.ListByWaba(context.Background(), "waba-1", 10)
	if err != nil {
		t.Fatalf("ListByWaba() error = %v", err)
	}
	if *captured.IndexName != "gsi-waba" {
		t.Errorf("IndexName = %q", *captured.IndexName)
	}
	if len(convs) != 1 || convs[0].CounterpartID != "15550100" {
		t.Errorf("convs = %+v", convs)
	}
}
