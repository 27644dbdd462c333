package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockDynamoDBClient struct {
	getItemFunc    func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	putItemFunc    func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	updateItemFunc func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	queryFunc      func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
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
	return &dynamodb.DeleteItemOutput{}, nil
}

func storedPayment(status Status, retries string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":            &types.AttributeValueMemberS{Value: "PAYMENT#pay-1"},
		"itemType":      &types.AttributeValueMemberS{Value: "PAYMENT"},
		"paymentId":     &types.AttributeValueMemberS{Value: "pay-1"},
		"wabaId":        &types.AttributeValueMemberS{Value: "waba-1"},
		"orderRef":      &types.AttributeValueMemberS{Value: "order-1"},
		"amountMinor":   &types.AttributeValueMemberN{Value: "1999"},
		"currency":      &types.AttributeValueMemberS{Value: "USD"},
		"paymentStatus": &types.AttributeValueMemberS{Value: string(status)},
		"retryCount":    &types.AttributeValueMemberN{Value: retries},
		"createdAt":     &types.AttributeValueMemberS{Value: "2026-01-15T10:00:00Z"},
		"updatedAt":     &types.AttributeValueMemberS{Value: "2026-01-15T10:00:00Z"},
	}
}

func TestCanProgress(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanProgress(tc.from, tc.to); got != tc.want {
			t.Errorf("CanProgress(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCreatePaymentDefaultsToPending(t *testing.T) {
	var captured *dynamodb.PutItemInput
	mock := &mockDynamoDBClient{
		putItemFunc: func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = input
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	p := &Payment{
		PaymentID: "pay-1", WabaID: "waba-1", OrderRef: "order-1",
		AmountMinor: 1999, Currency: "USD",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := repo.CreatePayment(context.Background(), p); err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}
	if status := captured.Item["paymentStatus"].(*types.AttributeValueMemberS).Value; status != "PENDING" {
		t.Errorf("paymentStatus = %q, want PENDING", status)
	}
	if sk := captured.Item["statusKey"].(*types.AttributeValueMemberS).Value; sk != "PAYMENT#waba-1#PENDING" {
		t.Errorf("statusKey = %q", sk)
	}
}

func TestUpdatePaymentStatusRejectsBadTransition(t *testing.T) {
	updates := 0
	mock := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: storedPayment(StatusCompleted, "0")}, nil
		},
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			updates++
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	_, err := repo.UpdatePaymentStatus(context.Background(), "pay-1", StatusFailed, "charge declined")
	if !errors.Is(err, ErrBadTransition) {
		t.Errorf("error = %v, want ErrBadTransition", err)
	}
	if updates != 0 {
		t.Errorf("UpdateItem called %d times, want 0", updates)
	}
}

func TestUpdatePaymentStatusRetryCeiling(t *testing.T) {
	mock := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: storedPayment(StatusProcessing, "2")}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	p, err := repo.UpdatePaymentStatus(context.Background(), "pay-1", StatusFailed, "timeout")
	if err != nil {
		t.Fatalf("UpdatePaymentStatus() error = %v", err)
	}
	if p.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", p.RetryCount)
	}
	if p.FailureReason != "timeout (retry ceiling reached)" {
		t.Errorf("FailureReason = %q", p.FailureReason)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	repo := NewRepository(&mockDynamoDBClient{}, "test-table")
	if _, err := repo.GetPayment(context.Background(), "pay-gone"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("GetPayment() error = %v, want ErrPaymentNotFound", err)
	}
}

func TestListByStatusQueriesStatusIndex(t *testing.T) {
	var captured *dynamodb.QueryInput
	mock := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			captured = input
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{storedPayment(StatusPending, "0")}}, nil
		},
	}

	repo := NewRepository(mock, "test-table")
	payments, err := repo.ListByStatus(context.Background(), "waba-1", StatusPending, 20)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if *captured.IndexName != "gsi-status" {
		t.Errorf("IndexName = %q", *captured.IndexName)
	}
	if key := captured.ExpressionAttributeValues[":statusKey"].(*types.AttributeValueMemberS).Value; key != "PAYMENT#waba-1#PENDING" {
		t.Errorf(":statusKey = %q", key)
	}
	if len(payments) != 1 || payments[0].PaymentID != "pay-1" {
		t.Errorf("payments = %+v", payments)
	}
}
