package persona

import (
	"fmt"
	"strconv"
	"strings"
)

// State identifies the current step of the intake dialogue.
type State int

const (
	StateName State = iota
	StateAge
	StateGender
	StateInterests
	StateProfession
	StateAppearance
	StateRelationship
	StateMood
	StateDone
)

// String returns the field name the state collects.
func (s State) String() string {
	switch s {
	case StateName:
		return "name"
	case StateAge:
		return "age"
	case StateGender:
		return "gender"
	case StateInterests:
		return "interests"
	case StateProfession:
		return "profession"
	case StateAppearance:
		return "appearance"
	case StateRelationship:
		return "relationship"
	case StateMood:
		return "mood"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// step is one row of the intake transition table: the question asked in
// a state, how the answer is stored, and how it is validated.
type step struct {
	state    State
	question string
	assign   func(*Persona, string)
	validate func(string) error
}

func nonEmpty(field string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalid, field)
		}
		return nil
	}
}

func numericAge(v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: age %q is not a number", ErrInvalid, v)
	}
	if n <= 0 {
		return fmt.Errorf("%w: age must be positive", ErrInvalid)
	}
	return nil
}

func anyText(string) error { return nil }

var steps = []step{
	{StateName, "What is your companion's name?", func(p *Persona, v string) { p.Name = v }, nonEmpty("name")},
	{StateAge, "How old are they?", func(p *Persona, v string) { p.Age = v }, numericAge},
	{StateGender, "What is their gender?", func(p *Persona, v string) { p.Gender = v }, anyText},
	{StateInterests, "What are their interests?", func(p *Persona, v string) { p.Interests = v }, anyText},
	{StateProfession, "What do they do for a living?", func(p *Persona, v string) { p.Profession = v }, anyText},
	{StateAppearance, "What do they look like?", func(p *Persona, v string) { p.Appearance = v }, anyText},
	{StateRelationship, "What is their relationship status?", func(p *Persona, v string) { p.Relationship = v }, anyText},
	{StateMood, "Describe their personality and mood.", func(p *Persona, v string) { p.Mood = v }, nonEmpty("mood")},
}

// Intake walks a user through companion creation one field at a time.
// It is transport-independent: any endpoint or chat adapter can drive
// it by alternating Question and Submit.
type Intake struct {
	idx int
	p   Persona
}

// NewIntake starts a fresh intake dialogue at the name step.
func NewIntake() *Intake {
	return &Intake{}
}

// State returns the current state.
func (i *Intake) State() State {
	if i.idx >= len(steps) {
		return StateDone
	}
	return steps[i.idx].state
}

// Question returns the question for the current state, or "" when done.
func (i *Intake) Question() string {
	if i.idx >= len(steps) {
		return ""
	}
	return steps[i.idx].question
}

// Done reports whether every field has been collected.
func (i *Intake) Done() bool {
	return i.idx >= len(steps)
}

// Submit records the answer for the current state and advances. On
// validation failure the state does not advance, so the same question
// can be asked again.
func (i *Intake) Submit(input string) (State, error) {
	if i.idx >= len(steps) {
		return StateDone, fmt.Errorf("%w: intake already complete", ErrInvalid)
	}

	s := steps[i.idx]
	input = strings.TrimSpace(input)
	if err := s.validate(input); err != nil {
		return s.state, err
	}

	s.assign(&i.p, input)
	i.idx++
	return i.State(), nil
}

// Persona returns the collected persona once the dialogue is done.
func (i *Intake) Persona() (Persona, error) {
	if !i.Done() {
		return Persona{}, fmt.Errorf("%w: intake incomplete, still at %s", ErrInvalid, i.State())
	}
	return i.p, nil
}
