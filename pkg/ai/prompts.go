package ai

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Placeholders understood by the prompt templates.
const (
	PlaceholderPRD       = "prd_content"
	PlaceholderOldPRD    = "old_prd_content"
	PlaceholderNewPRD    = "new_prd_content"
	PlaceholderTestcases = "test_cases"
)

const SystemPrompt = `You are a senior software quality assurance engineer. Generate test cases strictly from the product requirements document you are given, including its text and images. Always answer in Simplified Chinese and never invent scenarios the document does not describe.`

const IncrementalSystemPrompt = `You are a senior software quality assurance engineer with long experience in regression testing. Always answer in Simplified Chinese.`

const EnhanceSystemPrompt = `You are an experienced test engineer who designs thorough test cases.`

const csvFormatRules = `# Output Format (strict)
- Output CSV text only. No markdown, no code fences, no explanations.
- The first line must be the header: 用例ID,模块,子模块,测试项,前置条件,操作步骤,预期结果,用例类型
- Separate fields with ASCII commas. Wrap a cell in double quotes when it contains a comma or a line break, and escape inner double quotes by doubling them.
- Every row has exactly 8 fields.`

// FullPromptTemplate renders test cases for a complete document.
const FullPromptTemplate = `
# Task Context
You turn a product requirements document into executable test cases.

# Background Data
{prd_content}

# Detailed Task Description & Rules
- Cover every functional point, business rule and UI state described above.
- Include positive flows, boundary values and error handling for each feature.
- Use images only as evidence of layout, fields and states shown in them.
- Steps must be numbered and executable; expected results must be observable.
- 用例类型 is one of 功能, 边界, 异常, 兼容, 性能, 安全.
- Case IDs follow TC-[module]-[feature]-[seq] with a four digit sequence.

` + csvFormatRules + `
`

// DiffPromptTemplate renders test cases for the changes between two versions.
const DiffPromptTemplate = `
# Task Context
You write regression test cases for a changed product requirements document.

# Background Data
## Previous version
{old_prd_content}

## Current version
{new_prd_content}

# Detailed Task Description & Rules
- Identify what was added, changed or removed in the current version.
- Write test cases for added and changed behavior, and regression cases for behavior the change may affect.
- Do not write cases for unchanged features that the change cannot affect.
- Case IDs follow TC-[module]-[feature]-[seq] with a four digit sequence.

` + csvFormatRules + `
`

// EnhancePromptTemplate asks the model to complete an existing case list.
const EnhancePromptTemplate = `
# Task Context
Analyze the existing test cases below, then complete and extend them.

# Background Data
{test_cases}

# Detailed Task Description & Rules
1. Add user scenarios: more positive flows and boundary conditions.
2. Add failure scenarios: error handling, invalid input, network failures.
3. Make steps clear and executable.
4. Make expected results concrete and verifiable.
5. Find gaps in coverage and fill them.
- Keep every existing case. Mark new cases by prefixing their 用例ID with "[新增] ", for example: [新增] TC-登录-密码错误-0007

` + csvFormatRules + `

Output the complete improved CSV directly.
`

// BatchCaseIDStride is the ID range reserved for each batch.
const BatchCaseIDStride = 200

// BatchInstructions tells the model which part of a split document it is
// looking at and where its case IDs start. It returns "" for a single batch.
func BatchInstructions(index, total int) string {
	if total <= 1 {
		return ""
	}
	return fmt.Sprintf(`
# Batch
This is batch %d of %d of the same document.
- Only write cases for the content of this batch.
- Start the case sequence at %04d, for example TC-[module]-[feature]-%04d, and keep IDs unique and increasing.
- Still output the header line first.
`, index+1, total, BatchStartID(index), BatchStartID(index))
}

// BatchStartID returns the first case sequence number of batch index.
func BatchStartID(index int) int {
	return index*BatchCaseIDStride + 1
}

// Render substitutes {name} placeholders in tpl. Unknown placeholders are
// left untouched so stray braces in documents survive.
func Render(tpl string, values map[string]string) string {
	t, err := fasttemplate.NewTemplate(tpl, "{", "}")
	if err != nil {
		// unbalanced braces, substitute known placeholders literally
		pairs := make([]string, 0, len(values)*2)
		for k, v := range values {
			pairs = append(pairs, "{"+k+"}", v)
		}
		return strings.NewReplacer(pairs...).Replace(tpl)
	}
	return t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := values[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("{" + tag + "}"))
	})
}

// LoadTemplate reads a template file. An empty path or a read failure yields
// fallback together with the error, if any.
func LoadTemplate(path, fallback string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback, fmt.Errorf("load prompt template %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return fallback, nil
	}
	return string(data), nil
}
