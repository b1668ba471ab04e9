package budget

import (
	"errors"
	"testing"
)

func TestSecondAnswerCallFailsWithoutReflection(t *testing.T) {
	a := NewAccounting(false)
	if err := a.ConsumeAnswerCall(); err != nil {
		t.Fatalf("first answer call: %v", err)
	}
	err := a.ConsumeAnswerCall()
	if err == nil {
		t.Fatal("second answer call should fail with reflection disabled")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestReflectCallFailsWithoutReflection(t *testing.T) {
	a := NewAccounting(false)
	if err := a.ConsumeAnswerCall(); err != nil {
		t.Fatalf("answer call: %v", err)
	}
	if err := a.ConsumeReflectCall(); err == nil {
		t.Fatal("reflect call should fail when limit is 1")
	}
}

func TestAnswerPlusReflectWithinBudget(t *testing.T) {
	a := NewAccounting(true)
	if err := a.ConsumeAnswerCall(); err != nil {
		t.Fatalf("answer call: %v", err)
	}
	if err := a.ConsumeReflectCall(); err != nil {
		t.Fatalf("reflect call: %v", err)
	}
	if err := a.ConsumeAnswerCall(); err == nil {
		t.Fatal("third call (answer) should fail")
	}

	a = NewAccounting(true)
	a.ConsumeAnswerCall()
	a.ConsumeReflectCall()
	if err := a.ConsumeReflectCall(); err == nil {
		t.Fatal("third call (reflect) should fail")
	}
}

func TestCountersAdvanceEvenOnFailure(t *testing.T) {
	a := NewAccounting(false)
	a.ConsumeAnswerCall()
	a.ConsumeAnswerCall()
	if a.AnswerCalls() != 2 {
		t.Fatalf("expected answer_calls=2, got %d", a.AnswerCalls())
	}
	if a.Limit() != 1 {
		t.Fatalf("expected limit=1, got %d", a.Limit())
	}
}
