package qa

import (
	"strings"

	"judgebench/internal/schemas"
)

// SystemInstruction is sent as the system message alongside every compiled prompt.
const SystemInstruction = "You are an AI Judge. Return STRICT JSON only. Keys: verdict, reasoning."

const promptTemplate = `Judge the human answer against the question using the rubric.

Rubric:
{{rubric}}

Question:
{{question}}

Answer:
{{answer}}

Respond as JSON with keys "verdict" and "reasoning".
"verdict" must be exactly one of: pass, fail, inconclusive.
"reasoning" is a short justification (one or two sentences).`

// CompilePrompt renders the evaluation input for one (submission, question, judge) triple.
// The output depends only on its arguments.
func CompilePrompt(rubric, questionText string, answer schemas.Answer) string {
	r := strings.NewReplacer(
		"{{rubric}}", strings.TrimSpace(rubric),
		"{{question}}", strings.TrimSpace(questionText),
		"{{answer}}", AnswerText(answer),
	)
	return r.Replace(promptTemplate)
}

// AnswerText flattens the submitter's choice and reasoning into one line.
func AnswerText(a schemas.Answer) string {
	choice := strings.TrimSpace(a.Choice)
	reasoning := strings.TrimSpace(a.Reasoning)
	if reasoning == "" {
		return choice
	}
	return choice + ". Reason: " + reasoning
}
