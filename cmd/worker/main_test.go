package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"annotation-backend/internal/annotations"
	"annotation-backend/internal/engine"
	"annotation-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err error
}

func (f fakeProcessor) ProcessRun(ctx context.Context, runID string) error {
	_ = ctx
	_ = runID
	return f.err
}

func runMessage(t *testing.T, runID string) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{RunID: runID, RequestID: "req-" + runID})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String("m-" + runID),
		ReceiptHandle: aws.String("r-" + runID),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	handleMessage(context.Background(), client, "queue", fakeProcessor{}, runMessage(t, "run-1"))

	if len(client.deleted) != 1 || client.deleted[0] != "r-run-1" {
		t.Fatalf("expected delete, got %v", client.deleted)
	}
}

func TestWorkerKeepsMessageOnRetryableFailure(t *testing.T) {
	client := &fakeSQS{}
	svc := fakeProcessor{err: fmt.Errorf("%w: context deadline exceeded", engine.ErrLockTimeout)}
	handleMessage(context.Background(), client, "queue", svc, runMessage(t, "run-2"))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnPermanentFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "engine failed", err: fmt.Errorf("%w: bad input", engine.ErrProcessingFailed)},
		{name: "unknown run", err: annotations.ErrNotFound},
		{name: "already handled", err: annotations.ErrNotClaimable},
		{name: "internal", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSQS{}
			handleMessage(context.Background(), client, "queue", fakeProcessor{err: tt.err}, runMessage(t, "run-3"))
			if len(client.deleted) != 1 {
				t.Fatalf("expected delete, got %d", len(client.deleted))
			}
		})
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), client, "queue", fakeProcessor{}, msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnMissingRunID(t *testing.T) {
	client := &fakeSQS{}
	body, _ := queue.EncodeMessage(queue.Message{RequestID: "req-x"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m5"),
		ReceiptHandle: aws.String("r5"),
		Body:          aws.String(string(body)),
	}

	handleMessage(context.Background(), client, "queue", fakeProcessor{}, msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}
