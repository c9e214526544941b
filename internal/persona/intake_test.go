package persona

import (
	"errors"
	"testing"
)

func TestIntakeWalksAllSteps(t *testing.T) {
	i := NewIntake()

	answers := []string{"Nova", "26", "female", "astronomy", "artist", "tall", "single", "kind"}
	for n, a := range answers {
		if i.Done() {
			t.Fatalf("done after %d answers, want %d", n, len(answers))
		}
		if i.Question() == "" {
			t.Fatalf("empty question at step %d", n)
		}
		if _, err := i.Submit(a); err != nil {
			t.Fatalf("submit step %d: %v", n, err)
		}
	}

	if !i.Done() {
		t.Fatal("intake should be done")
	}
	p, err := i.Persona()
	if err != nil {
		t.Fatalf("persona: %v", err)
	}
	if p.Name != "Nova" || p.Age != "26" || p.Mood != "kind" {
		t.Errorf("persona = %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("collected persona should validate: %v", err)
	}
}

func TestIntakeBadAgeKeepsState(t *testing.T) {
	i := NewIntake()
	if _, err := i.Submit("Nova"); err != nil {
		t.Fatalf("name: %v", err)
	}

	state, err := i.Submit("old enough")
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
	if state != StateAge {
		t.Errorf("state = %v, want StateAge retry", state)
	}

	// A valid answer then advances.
	state, err = i.Submit("26")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if state != StateGender {
		t.Errorf("state = %v, want StateGender", state)
	}
}

func TestIntakePersonaBeforeDone(t *testing.T) {
	i := NewIntake()
	if _, err := i.Persona(); !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid for incomplete intake", err)
	}
}

func TestIntakeSubmitAfterDone(t *testing.T) {
	i := NewIntake()
	for _, a := range []string{"Nova", "26", "f", "x", "y", "z", "s", "kind"} {
		if _, err := i.Submit(a); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := i.Submit("extra"); !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid after completion", err)
	}
}
