package requestlog

import (
	"context"
	"reflect"
	"testing"
)

func TestAppendDropsOldestOverCapacity(t *testing.T) {
	ctx := context.Background()
	l := NewMemLog(3)

	l.Append(ctx, "d1", Entry{Timestamp: 1, Username: "A"})
	l.Append(ctx, "d1", Entry{Timestamp: 2, Username: "B"})
	l.Append(ctx, "d1", Entry{Timestamp: 3, Username: "C"})
	l.Append(ctx, "d1", Entry{Timestamp: 4, Username: "D"})

	got := l.UsernamesOf("d1")
	want := []string{"B", "C", "D"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UsernamesOf = %v, want %v", got, want)
	}
}

func TestRotateMovesHeadToTail(t *testing.T) {
	ctx := context.Background()
	l := NewMemLog(3)
	l.Append(ctx, "d2", Entry{Timestamp: 1, Username: "X"})
	l.Append(ctx, "d2", Entry{Timestamp: 2, Username: "Y"})
	l.Append(ctx, "d2", Entry{Timestamp: 3, Username: "Z"})

	if err := l.Rotate(ctx, "d2"); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	got := l.UsernamesOf("d2")
	want := []string{"Y", "Z", "X"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UsernamesOf after rotate = %v, want %v", got, want)
	}
}

func TestRotateNoHistoryIsNoop(t *testing.T) {
	l := NewMemLog(3)
	if err := l.Rotate(context.Background(), "absent"); err != nil {
		t.Fatalf("Rotate on absent device should not error: %v", err)
	}
	if _, ok := l.Head("absent"); ok {
		t.Error("expected no head for absent device")
	}
}

func TestContainsAndHead(t *testing.T) {
	ctx := context.Background()
	l := NewMemLog(3)
	l.Append(ctx, "d3", Entry{Timestamp: 5, Username: "A"})
	l.Append(ctx, "d3", Entry{Timestamp: 6, Username: "B"})

	if !l.Contains("d3", "A") {
		t.Error("expected Contains(d3, A) to be true")
	}
	if l.Contains("d3", "Z") {
		t.Error("expected Contains(d3, Z) to be false")
	}

	head, ok := l.Head("d3")
	if !ok || head.Username != "A" {
		t.Errorf("Head = %+v, ok=%v; want A", head, ok)
	}
}
