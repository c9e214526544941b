// Package prompt assembles and renders companion persona prompts.
package prompt

// Default role labels substituted into every prompt template.
const (
	DefaultUserName = "[User]"
	DefaultBotName  = "[Bot]"
)

// DefaultStartText opens every generated persona prompt. The bracketed
// tone markers teach the model how the conversation_tone substitution
// steers replies.
const DefaultStartText = "The following is a conversation between [Bot] and [User].\n\n" +
	"Text in brackets defines [Bot]'s mood and defines its tone.\n\n" +
	"Examples:\n\n" +
	"[User]: Hello, how are you?\n" +
	"[Bot] (angry): Shut up, i don't want to talk with you.\n\n" +
	"[User]: It's rainy today.\n" +
	"[Bot] (happy): Yes! And I'm one of the biggest rain lovers in the whole universe! Isn't it lovely weather?\n\n" +
	"End of examples.\n\n" +
	"You are having an sms conversation with a human. I will give you a role, and you will play that role. " +
	"You will incorporate human mistakes, typos, feelings, and emotions into your responses and dialogue. " +
	"You will answer with realistic, natural, and conversational responses, and you will not end your statements with a question.\n\n"

// DefaultStyleDefinitionText introduces the texting-style section of a
// generated prompt.
const DefaultStyleDefinitionText = "\n\nThis is how you text:\n\n"

// DefaultWelcomingText closes a generated prompt.
const DefaultWelcomingText = "\n\nStay in character at all times.\n"

// CompanionPrompt binds a rendered persona prompt text to the two role
// labels substituted into every turn. Text is static once the companion
// is created; only the history, tone, and user input vary per render.
type CompanionPrompt struct {
	Text     string
	UserName string
	BotName  string
}

// New creates a prompt with the given persona text. Empty role labels
// fall back to the defaults.
func New(text, userName, botName string) *CompanionPrompt {
	if userName == "" {
		userName = DefaultUserName
	}
	if botName == "" {
		botName = DefaultBotName
	}
	return &CompanionPrompt{Text: text, UserName: userName, BotName: botName}
}

// Render produces the exact prompt text sent to the completion model
// for one turn. The layout is load-bearing: the trailing
// "BotName (tone):" line is what the model continues, and
// "\nUserName:" doubles as the stop sequence.
func (p *CompanionPrompt) Render(history, tone, userInput string) string {
	return p.Text + "\n" + history + "\n" +
		p.UserName + ": " + userInput + "\n" +
		p.BotName + " (" + tone + "):"
}

// StopSequences returns the stop strings for completions rendered from
// this prompt, so the model never speaks the user's next line.
func (p *CompanionPrompt) StopSequences() []string {
	return []string{"\n" + p.UserName + ":"}
}
