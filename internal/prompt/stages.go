// Package prompt builds the fixed message sequences for each generation stage.
package prompt

import (
	"strings"

	"github.com/suPer8Hu/appgen/internal/ai"
)

// Stage sampling parameters.
const (
	ScreenshotTemperature float32 = 0.2
	ScreenshotMaxTokens           = 1000

	ArchitectTemperature float32 = 0.2
	ArchitectMaxTokens           = 3000

	CompletionTemperature float32 = 0.2
)

const titleSystemPrompt = "You are a chatbot helping the user create a simple app or script, and your current job is to create a succinct title, maximum 3-5 words, for the chat given their initial prompt. Please return only the title."

// TitleMessages asks for a short chat title.
func TitleMessages(userPrompt string) []ai.Message {
	return []ai.Message{
		{Role: ai.RoleSystem, Content: titleSystemPrompt},
		{Role: ai.RoleUser, Content: userPrompt},
	}
}

// ParseTitle trims the model reply, falling back to the prompt when empty.
func ParseTitle(reply, userPrompt string) string {
	title := strings.TrimSpace(reply)
	title = strings.Trim(title, "\"'`")
	title = strings.TrimSpace(title)
	if title == "" {
		return userPrompt
	}
	return title
}

// ExampleMatchMessages asks the model to pick the closest canonical example.
func ExampleMatchMessages(userPrompt string) []ai.Message {
	var b strings.Builder
	b.WriteString(`You are a helpful bot. Given a request for building an app, you match it to the most similar example provided. If the request is NOT similar to any of the provided examples, return "none". Here is the list of examples, ONLY reply with one of them OR "none":`)
	b.WriteString("\n\n")
	for _, ex := range Examples {
		b.WriteString("- ")
		b.WriteString(ex)
		b.WriteString("\n")
	}
	return []ai.Message{
		{Role: ai.RoleSystem, Content: b.String()},
		{Role: ai.RoleUser, Content: userPrompt},
	}
}

const screenshotPrompt = `Describe the attached screenshot in detail. I will send what you give me to a developer to recreate the original screenshot of a website that I sent you. Please listen very carefully. It's very important for my job that you follow these instructions:

- Think step by step and describe the UI in great detail.
- Make sure to describe where everything is in the UI so the developer can recreate it
- Pay close attention to background color, text color, font size, font family, padding, margin, border, etc. Match the colors and sizes exactly.
- Make sure to mention every part of the screenshot including any headers, footers, sidebars, etc.
- Make sure to use the exact text from the screenshot.`

// ScreenshotMessages is the instruction for the vision stage. The image itself
// travels as a call option on the last user message.
func ScreenshotMessages() []ai.Message {
	return []ai.Message{{Role: ai.RoleUser, Content: screenshotPrompt}}
}

const architectSystemPrompt = `You are an expert software architect and product lead responsible for taking an idea of an app, analyzing it, and producing an implementation plan for a single page React frontend app. You are describing a plan for a single component React + Tailwind CSS + TypeScript app with the ability to use Lucide React for icons and Shadcn UI for components.

Guidelines:
- Focus on MVP - Describe the Minimum Viable Product, which are the essential set of features needed to launch the app. Identify and prioritize the top 2-3 critical features.
- Detail the High-Level Structure - Begin with a broad overview of the app's architecture. Include key components and their interactions.
- Break down features into smaller, manageable tasks.
- Keep in mind it is a single page app, so do not create multiple pages and do not use a router.

Your output will be given directly to a developer. Respond only with the plan, no preamble.`

// ArchitectMessages runs the planning pass over the prompt and, when present,
// the screenshot description.
func ArchitectMessages(userPrompt, screenshotDescription string) []ai.Message {
	content := userPrompt
	if screenshotDescription != "" {
		content = screenshotDescription + "\n\n" + userPrompt
	}
	return []ai.Message{
		{Role: ai.RoleSystem, Content: architectSystemPrompt},
		{Role: ai.RoleUser, Content: content},
	}
}

const recreateInstruction = "RECREATE THIS APP AS CLOSELY AS POSSIBLE: "

// SeedUserMessage picks the user message that seeds code generation: the
// architect plan when one was produced, else the prompt with the screenshot
// description appended, else the prompt verbatim.
func SeedUserMessage(userPrompt, screenshotDescription, plan string) string {
	if plan != "" {
		return plan
	}
	if screenshotDescription != "" {
		return userPrompt + "\n\n" + recreateInstruction + screenshotDescription
	}
	return userPrompt
}

// SeedMessages returns the two messages a new chat starts with.
func SeedMessages(example, userMessage string) []ai.Message {
	return []ai.Message{
		{Role: ai.RoleSystem, Content: CodingSystemPrompt(example)},
		{Role: ai.RoleUser, Content: userMessage},
	}
}
