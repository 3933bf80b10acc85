package action

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
)

func TestCommand_Clamp(t *testing.T) {
	tests := []struct {
		in   Command
		want Command
		warn int
	}{
		{Command{Kind: Forward, Steps: 3, Speed: 800}, Command{Kind: Forward, Steps: 3, Speed: 800}, 0},
		{Command{Kind: 0, Steps: 0, Speed: 0}, Command{Kind: Forward, Steps: 1, Speed: 500}, 3},
		{Command{Kind: 9, Steps: 11, Speed: 1001}, Command{Kind: Rest, Steps: 10, Speed: 1000}, 3},
		{Command{Kind: Stop, Steps: 1, Speed: 1000}, Command{Kind: Stop, Steps: 1, Speed: 1000}, 0},
		{Command{Kind: Sway, Steps: -4, Speed: 500}, Command{Kind: Sway, Steps: 1, Speed: 500}, 1},
	}
	for _, tt := range tests {
		logger, logs := golog.NewObservedTestLogger(t)
		got := tt.in.Clamp(logger)
		if got != tt.want {
			t.Errorf("Clamp(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
		if n := logs.Len(); n != tt.warn {
			t.Errorf("Clamp(%+v) logged %d warnings, want %d", tt.in, n, tt.warn)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"forward", Forward, false},
		{"Turn-Left", TurnLeft, false},
		{" wave ", Wave, false},
		{"stop", Stop, false},
		{"suspend", Stop, false},
		{"7", Sit, false},
		{"42", Kind(42), false},
		{"moonwalk", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseKind(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestKind_Gait(t *testing.T) {
	for _, k := range Kinds() {
		g, ok := k.Gait()
		if !ok {
			t.Errorf("%s has no gait", k)
			continue
		}
		if string(g.Name) != k.String() {
			t.Errorf("%s plays gait %s", k, g.Name)
		}
	}
	if _, ok := Stop.Gait(); ok {
		t.Error("stop has a gait")
	}
}

func TestNewCommand(t *testing.T) {
	a := NewCommand(Forward, 1, 1000)
	b := NewCommand(Forward, 1, 1000)
	if a.ID == uuid.Nil || a.ID == b.ID {
		t.Errorf("command IDs %s, %s not unique", a.ID, b.ID)
	}
	if a.StepTime() != time.Second {
		t.Errorf("StepTime() = %v, want 1s", a.StepTime())
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()

	if _, ok := q.Pop(ctx, 5*time.Millisecond); ok {
		t.Fatal("Pop() on empty queue returned a command")
	}

	a, b := NewCommand(Forward, 1, 1000), NewCommand(Backward, 1, 1000)
	if err := q.Push(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(ctx, b); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 || q.Cap() != 2 {
		t.Errorf("Len/Cap = %d/%d, want 2/2", q.Len(), q.Cap())
	}

	if got, ok := q.Pop(ctx, time.Millisecond); !ok || got.ID != a.ID {
		t.Errorf("Pop() = %v, %v, want first command", got.Kind, ok)
	}

	dropped := q.Reset()
	if len(dropped) != 1 || dropped[0].ID != b.ID {
		t.Errorf("Reset() dropped %d commands", len(dropped))
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Reset = %d", q.Len())
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, ok := q.Pop(canceled, time.Hour); ok {
		t.Error("Pop() with canceled context returned a command")
	}

	if NewQueue(0).Cap() != DefaultQueueSize {
		t.Errorf("NewQueue(0).Cap() = %d, want %d", NewQueue(0).Cap(), DefaultQueueSize)
	}
}
