package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func TestNewMessage(t *testing.T) {
	now := time.Date(2026, time.January, 30, 22, 0, 0, 0, time.FixedZone("x", 3600))
	msg := NewMessage("run-123", "request-456", now)
	if msg.EnqueuedAt != "2026-01-30T21:00:00Z" {
		t.Fatalf("expected UTC timestamp, got %q", msg.EnqueuedAt)
	}
	if msg.Version != MessageVersion || msg.RunID != "run-123" || msg.RequestID != "request-456" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestDecodeMessageFieldNames(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"runId":"run-1","requestId":"req-1","enqueuedAt":"2026-01-30T22:00:00Z","version":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.RunID != "run-1" || msg.RequestID != "req-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if _, err := DecodeMessage([]byte("{bad")); err == nil {
		t.Fatalf("expected decode error")
	}
}

type fakeSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSender) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSClientSend(t *testing.T) {
	fake := &fakeSender{}
	client := NewSQSClientWith(fake, "https://sqs.example/queue")
	if err := client.Send(context.Background(), Message{RunID: "run-7", Version: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	in := fake.inputs[0]
	if aws.ToString(in.QueueUrl) != "https://sqs.example/queue" {
		t.Fatalf("unexpected queue url %q", aws.ToString(in.QueueUrl))
	}
	if !strings.Contains(aws.ToString(in.MessageBody), `"runId":"run-7"`) {
		t.Fatalf("unexpected body %q", aws.ToString(in.MessageBody))
	}
}

func TestSQSClientSendWrapsErrors(t *testing.T) {
	boom := errors.New("throttled")
	client := NewSQSClientWith(&fakeSender{err: boom}, "q")
	err := client.Send(context.Background(), Message{RunID: "run-8"})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "run-8") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewSQSClientRequiresURL(t *testing.T) {
	if _, err := NewSQSClient(context.Background(), "us-east-1", " "); err == nil {
		t.Fatalf("expected error for empty queue url")
	}
}
