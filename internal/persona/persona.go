// Package persona defines companion persona sheets and the staged
// intake dialogue that collects them.
package persona

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid marks malformed persona fields. Validation happens before
// any conversation is created.
var ErrInvalid = errors.New("invalid persona")

// Persona holds the fields collected during companion creation.
type Persona struct {
	Name         string `json:"name"`
	Age          string `json:"age"`
	Gender       string `json:"gender"`
	Interests    string `json:"interests"`
	Profession   string `json:"profession"`
	Appearance   string `json:"appearance"`
	Relationship string `json:"relationship"`
	Mood         string `json:"mood"`
}

// Validate checks the fields that the prompt pipeline depends on.
// Name and a numeric age are required; the descriptive fields may be
// empty.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	age, err := strconv.Atoi(strings.TrimSpace(p.Age))
	if err != nil {
		return fmt.Errorf("%w: age %q is not a number", ErrInvalid, p.Age)
	}
	if age <= 0 {
		return fmt.Errorf("%w: age must be positive", ErrInvalid)
	}
	return nil
}

// Sheet renders the persona as the "Key: value" description stored on
// checkpoints, shown in companion lists, and fed to the prompt and
// selfie pipelines.
func (p Persona) Sheet() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Age: %s\n", p.Age)
	fmt.Fprintf(&b, "Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "Interests: %s\n", p.Interests)
	fmt.Fprintf(&b, "Profession: %s\n", p.Profession)
	fmt.Fprintf(&b, "Appearance: %s\n", p.Appearance)
	fmt.Fprintf(&b, "Relationship status: %s\n", p.Relationship)
	fmt.Fprintf(&b, "Personality: %s", p.Mood)
	return b.String()
}

// ParseSheet splits a persona sheet back into its key/value fields.
// Lines without a "Key: value" shape are skipped.
func ParseSheet(sheet string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(sheet, "\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
