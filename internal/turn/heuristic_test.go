package turn

import "testing"

func TestLooksMultiStepNumbered(t *testing.T) {
	text := "1. fetch the data 2. normalize it 3. write the report"
	if !LooksMultiStep(text) {
		t.Fatalf("three numbered markers should trigger the planner")
	}
}

func TestLooksMultiStepParenNumbering(t *testing.T) {
	text := "do 1) setup 2) migration 3) verification"
	if !LooksMultiStep(text) {
		t.Fatalf("paren-style numbering should trigger the planner")
	}
}

func TestLooksMultiStepTwoMarkersNotEnough(t *testing.T) {
	text := "1. first thing 2. second thing"
	if LooksMultiStep(text) {
		t.Fatalf("two markers should not trigger the planner")
	}
}

func TestLooksMultiStepBullets(t *testing.T) {
	text := "please handle:\n- backup\n- restore\n- cleanup"
	if !LooksMultiStep(text) {
		t.Fatalf("three bullet lines should trigger the planner")
	}
	two := "please handle:\n- backup\n- restore"
	if LooksMultiStep(two) {
		t.Fatalf("two bullet lines should not trigger the planner")
	}
}

func TestLooksMultiStepSequencingWords(t *testing.T) {
	text := "build it, then test it, and finally ship it"
	if !LooksMultiStep(text) {
		t.Fatalf("two sequencing words should trigger the planner")
	}
	one := "build it and then ship it"
	if LooksMultiStep(one) {
		t.Fatalf("a single sequencing word should not trigger the planner")
	}
}

func TestLooksMultiStepSequencingCaseInsensitive(t *testing.T) {
	text := "do X Then do Y and Finally do Z"
	if !LooksMultiStep(text) {
		t.Fatalf("sequencing word matching should be case-insensitive")
	}
}

func TestLooksMultiStepPlainQuestion(t *testing.T) {
	if LooksMultiStep("what is the capital of France?") {
		t.Fatalf("a plain question should not trigger the planner")
	}
}
