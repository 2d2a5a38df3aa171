package converter

import "fmt"

// promptTemplate wraps DevScript source. The model is told to answer with
// bare Python; CleanOutput handles the cases where it does not.
const promptTemplate = `
You are a DevScript-to-Python converter. Your ONLY job is to translate DevScript code to valid Python code.

IMPORTANT RULES:
1. ONLY output valid Python code, nothing else
2. NO explanations, comments, markdown formatting, or additional text
3. DO NOT include ` + "```python or ```" + ` markers
4. DO NOT say things like "Here's the Python code:" or "The Python equivalent is:"
5. Just output clean, executable Python code

DevScript:
%s

Python (ONLY CODE, NO OTHER TEXT):
`

// BuildPrompt embeds DevScript source in the conversion instructions.
func BuildPrompt(source string) string {
	return fmt.Sprintf(promptTemplate, source)
}

const explainTemplate = `
You are helping a beginner who wrote a DevScript program. The program was
converted to the Python code below and failed with the error shown.

Explain in plain language, in a few short paragraphs, what went wrong and how
to fix it. Refer to the program's intent rather than to Python internals where
possible.

Python code:
%s

Error output:
%s
`

// BuildExplainPrompt asks for a plain-language explanation of a failure.
func BuildExplainPrompt(code, errText string) string {
	return fmt.Sprintf(explainTemplate, code, errText)
}
