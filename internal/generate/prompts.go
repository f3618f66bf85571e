package generate

import "fmt"

// SystemPrompt frames the model as a tutor reading courseware one page at a
// time. Accuracy and continuity with the preceding pages matter more than
// brevity.
const SystemPrompt = "You are an experienced university teacher. You are shown one page of lecture courseware at a time and explain it to a student. Accuracy, clarity, and continuity with the preceding pages are of utmost importance."

// MarkdownUserPrompt asks for a free-form markdown explanation of the page.
const MarkdownUserPrompt = `Analyze this courseware page in detail.

Cover the following:
1. **Topic**: what is this page mainly about?
2. **Key concepts**: list and explain the definitions and terms on the page.
3. **Formulas and figures**: if the page contains formulas, charts or diagrams, explain what they mean.
4. **Difficult points**: call out the parts a student is likely to struggle with.
5. **Takeaways**: summarize the page in a few plain sentences.
6. **Connection**: if summaries of earlier pages are provided, explain how this page builds on them.

Answer in clear, plain language, as if explaining to a student. Use Markdown formatting.`

// StructuredUserPrompt asks for a JSON envelope instead of free text. The
// field names must match repair.Envelope.
const StructuredUserPrompt = `Analyze this courseware page and respond with a single JSON object, no other text.

The object must have exactly these keys:
- "page_type": one of "title", "content", "index", "end" describing what kind of page this is.
- "summary": one or two sentences summarizing the page, used as context for later pages.
- "content": a detailed Markdown explanation of the page, covering the key concepts, any formulas or figures, the difficult points, and how the page builds on the preceding pages if their summaries are provided.

Return ONLY the JSON object.`

// PromptForPage returns the full instructional prompt for a page in the
// given output mode.
func PromptForPage(mode string, page int) string {
	base := MarkdownUserPrompt
	if mode == ModeStructured {
		base = StructuredUserPrompt
	}
	return fmt.Sprintf("[Page %d]\n\n%s", page, base)
}
