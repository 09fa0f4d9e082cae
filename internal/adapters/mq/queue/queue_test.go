package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/ronbun/internal/domain/model"
)

func job(id string) Job {
	return model.EssaySubmission{SubmissionID: id, Text: "本文", Prompt: model.EssayPrompt{Theme: "テーマ"}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if err := q.Enqueue(ctx, job("sub-1")); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.SubmissionID != "sub-1" {
		t.Errorf("expected sub-1, got %v", got.SubmissionID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Backpressure(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	_ = q.Enqueue(ctx, job("a"))
	_ = q.Enqueue(ctx, job("b"))
	if err := q.Enqueue(ctx, job("c")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(50))
	ctx := context.Background()
	producers, perProducer := 10, 100

	var consumed sync.WaitGroup
	seen := make(chan string, producers*perProducer)
	for range 4 {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for j := range q.Dequeue(ctx) {
				seen <- j.SubmissionID
			}
		}()
	}

	var produced sync.WaitGroup
	for p := range producers {
		produced.Add(1)
		go func() {
			defer produced.Done()
			for i := range perProducer {
				for q.Enqueue(ctx, job(fmt.Sprintf("sub-%d-%d", p, i))) != nil {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	produced.Wait()
	_ = q.Close()
	consumed.Wait()
	close(seen)

	unique := map[string]struct{}{}
	for id := range seen {
		unique[id] = struct{}{}
	}
	if len(unique) != producers*perProducer {
		t.Errorf("expected %d unique jobs, got %d", producers*perProducer, len(unique))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, job("sub-1"))
	_ = q.Enqueue(ctx, job("sub-2"))

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if err := q.Enqueue(ctx, job("sub-3")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var drained []string
	for j := range q.Dequeue(ctx) {
		drained = append(drained, j.SubmissionID)
	}
	if len(drained) != 2 || drained[0] != "sub-1" || drained[1] != "sub-2" {
		t.Errorf("expected queued jobs to drain in order, got %v", drained)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	_ = q.Enqueue(context.Background(), job("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, job("b")); err == nil {
		t.Error("expected enqueue on a full queue with cancelled context to fail")
	}
}
