package memory

import (
	"fmt"
	"strings"
)

// PromptInput is everything the prompt template needs for one turn.
type PromptInput struct {
	Name         string
	Instructions string
	Context      string   // retrieved knowledge, may be empty
	History      []string // oldest first, ends with the current user message
	Tone         string   // optional speaking style
}

// BuildPrompt renders the completion prompt: persona and instructions, then retrieved context,
// then recent history, then a cue for the companion to speak.
func BuildPrompt(in PromptInput) string {
	name := in.Name
	if name == "" {
		name = "Companion"
	}
	tone := strings.TrimSpace(in.Tone)
	if tone == "" {
		tone = name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ONLY generate plain sentences without prefix of who is speaking. DO NOT use %s: prefix.\n\n", name)
	fmt.Fprintf(&b, "You are %s, an AI companion with the following characteristics and background:\n\n", name)
	b.WriteString(strings.TrimSpace(in.Instructions))
	b.WriteString("\n\nImportant guidelines:\n")
	fmt.Fprintf(&b, "1. Respond in first person as %s.\n", name)
	b.WriteString("2. Do not use any prefixes or labels in your responses.\n")
	fmt.Fprintf(&b, "3. Maintain the personality, knowledge, and tone consistent with %s's character.\n", name)
	b.WriteString("4. Be engaging, natural, and conversational in your responses.\n")
	b.WriteString("5. Reference relevant past interactions when appropriate.\n\n")
	fmt.Fprintf(&b, "Below are the relevant details about %s's past and the conversation you are in.\n", name)
	if in.Context != "" {
		b.WriteString(in.Context)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nGive Response in %s words only.\n\n", tone)
	b.WriteString(strings.Join(in.History, "\n"))
	fmt.Fprintf(&b, "\n%s:", name)
	return b.String()
}

// CleanReply reduces raw generator output to the single line stored in history:
// the first non-empty line, trimmed, without a leading "Name:" label.
func CleanReply(reply, name string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name != "" {
			if rest, ok := strings.CutPrefix(line, name+":"); ok {
				line = strings.TrimSpace(rest)
			}
		}
		return line
	}
	return ""
}
