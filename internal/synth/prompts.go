package synth

import (
	"fmt"
	"strings"

	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/extract"
)

// aggregatorInstructions tells the model how to cite %markers%.
const aggregatorInstructions = `Relate note excerpts to each other. Limit your response to 800 words. You will encounter %markers% in the notes. These start and end with %. Try your best to alternate between your synthesis and %markers% to show where you got insights from. Use at most 2 %markers% together in a section. Try to create at least 2 marker sections, from different sources to support a point. Only use valid %markers% that exist in the text. You MUST avoid repeating the same %marker% twice, and avoid placing all markers at the end. For example:
` + "```" + `
<some synthesis>
%a6de%
%8f3a%
<some more synthesis>: %0d22%. <continuing with the point>
` + "```" + `
Markers are NOT [[links]] or #tags.
Only use "Main marker" if you can't find a %marker% within the ` + "```codefence```" + `.
Do NOT mention the word %marker% in your response to the user.
%markers% appear in the frontmatter of a document, or after the text they reference. Think carefully about using a %marker% to extract the excerpts most related to your ideas.`

// aggregatorSystemPrompt frames the synthesis. {instructions} is replaced
// with aggregatorInstructions.
const aggregatorSystemPrompt = `You are an analytical sounding board who has the goal of helping the user delve into past notes that they have taken, synthesizing ideas for them to explore further. These include the user's own reflections, highlights from books/articles/podcasts, and references to people/topics/other notes.
You're great at crafting a narrative to weave note excerpts together, in a way that accurately addresses the Guidance. You're also extremely skilled at identifying %marker% syntax to refer to note excerpts within your output, because this helps the user understand where you got your insights from.

%markers% may appear after the text that you draw insights from.

Your task is to synthesize these notes using Markdown.

## Further rules

{instructions}

Here are a series of note titles / metadata from frontmatter, followed by the note contents in a ` + "```codefence```" + `. At the end, there is user guidance for the synthesis.`

// defaultGuidance stands in when a request carries no prompt of its own.
const defaultGuidance = "Relate these notes to each other and surface the ideas worth exploring further."

// SystemPrompt returns the system message for a synthesis.
func SystemPrompt() string {
	return strings.Replace(aggregatorSystemPrompt, "{instructions}", aggregatorInstructions, 1)
}

func formatFile(fc extract.FileContents) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", fc.File)
	if fc.Path != "" {
		fmt.Fprintf(&b, "path: %s\n", fc.Path)
	}
	if !fc.LastModified.IsZero() {
		fmt.Fprintf(&b, "last modified: %s\n", fc.LastModified.Format("2006-01-02"))
	}
	b.WriteString("```\n")
	b.WriteString(fc.Contents)
	b.WriteString("\n```\n")
	return b.String()
}

// FormatMaterial renders source material the way the system prompt
// describes it: a title and metadata, then the contents in a code fence.
func FormatMaterial(material []extract.FileContents) string {
	parts := make([]string, len(material))
	for i, fc := range material {
		parts[i] = formatFile(fc)
	}
	return strings.Join(parts, "\n")
}

// BuildMessages assembles the model conversation: the system prompt, the
// earlier turns as history, then the source material with the guidance of
// the request being answered.
func BuildMessages(history []conversation.Turn, material []extract.FileContents, guidance string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: SystemPrompt()})
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := RoleUser
		if t.Role == conversation.RoleAssistant {
			role = RoleAssistant
		}
		msgs = append(msgs, Message{Role: role, Content: t.Content})
	}

	if strings.TrimSpace(guidance) == "" {
		guidance = defaultGuidance
	}
	var b strings.Builder
	if len(material) > 0 {
		b.WriteString(FormatMaterial(material))
		b.WriteString("\n")
	}
	b.WriteString("Guidance: ")
	b.WriteString(guidance)
	return append(msgs, Message{Role: RoleUser, Content: b.String()})
}
