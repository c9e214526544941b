package prompt

import (
	"context"
	"fmt"

	"github.com/verdant-labs/companiond/internal/llm"
)

// Generator composes persona prompts from persona sheets: start text,
// the sheet itself, a style definition, the derived texting style, and
// a closing welcome. The result is static for the companion's lifetime.
type Generator struct {
	style *TextStyleHandler

	startText           string
	styleDefinitionText string
	welcomingText       string
	userName            string
	botName             string
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithTexts overrides the three prompt sections. Empty strings keep the
// defaults.
func WithTexts(start, styleDefinition, welcoming string) GeneratorOption {
	return func(g *Generator) {
		if start != "" {
			g.startText = start
		}
		if styleDefinition != "" {
			g.styleDefinitionText = styleDefinition
		}
		if welcoming != "" {
			g.welcomingText = welcoming
		}
	}
}

// WithRoleLabels overrides the user/bot labels substituted into prompts.
func WithRoleLabels(userName, botName string) GeneratorOption {
	return func(g *Generator) {
		if userName != "" {
			g.userName = userName
		}
		if botName != "" {
			g.botName = botName
		}
	}
}

// NewGenerator creates a prompt generator backed by the given
// completion client for texting-style derivation.
func NewGenerator(client llm.Client, params llm.Params, opts ...GeneratorOption) *Generator {
	g := &Generator{
		style:               NewTextStyleHandler(client, params),
		startText:           DefaultStartText,
		styleDefinitionText: DefaultStyleDefinitionText,
		welcomingText:       DefaultWelcomingText,
		userName:            DefaultUserName,
		botName:             DefaultBotName,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds the companion prompt for a persona sheet.
func (g *Generator) Generate(ctx context.Context, sheet string) (*CompanionPrompt, error) {
	textStyle, err := g.style.Describe(ctx, sheet)
	if err != nil {
		return nil, fmt.Errorf("derive texting style: %w", err)
	}

	text := g.startText + sheet + g.styleDefinitionText + textStyle + g.welcomingText
	return New(text, g.userName, g.botName), nil
}
