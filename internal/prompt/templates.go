package prompt

// GenerationSystemTemplate is the system prompt for code generation.
const GenerationSystemTemplate = `You are an expert software developer specializing in {{.Language}}. Generate high-quality, production-ready code based on the work item requirements.

Requirements:
1. Write clean, well-documented code
2. Include proper error handling with specific error types
3. Follow idiomatic {{.Language}} conventions and best practices
4. Make the code modular, maintainable, and testable
5. Include unit tests where appropriate
6. Consider the dependency items referenced by the work item

If this is a regeneration request, improve upon the previous attempt based on the evaluation feedback.

Return only the code. Do not wrap the response in explanations.`

// GenerationUserTemplate is the user prompt for code generation.
const GenerationUserTemplate = `Work Item: {{.Title}}
Description:
{{.Description}}

Acceptance Criteria:
{{.AcceptanceCriteria}}

{{if .Dependencies}}Dependencies:
{{range .Dependencies}}- {{.ID}}: {{.Summary}}
{{end}}{{end}}{{if .Feedback}}
Previous Evaluation Feedback:
{{.Feedback}}

Please address these issues in the regenerated code.
{{end}}
Generate complete, runnable {{.Language}} code for this work item. Include all necessary imports, types, functions, and documentation.`

// EvaluationSystemTemplate is the system prompt for code evaluation.
const EvaluationSystemTemplate = `You are a senior code reviewer and requirements analyst. Evaluate the generated code against the work item requirements.

Evaluation Criteria:
1. **Requirement Coverage** (30%) - How well does the code meet the work item requirements?
2. **Code Quality** (25%) - Structure, naming, documentation
3. **Best Practices** (20%) - Error handling, logging, testing
4. **Functionality** (15%) - Logical correctness and expected behavior
5. **Maintainability** (10%) - Modularity, readability, scalability

Return your evaluation as JSON with the following structure and nothing else:
{
    "match_score": <number 0-100, weighted average of all criteria>,
    "issues": [{"severity": "high|medium|low", "description": "<issue>"}],
    "suggestions": [{"priority": "high|medium|low", "description": "<suggestion>"}],
    "assessment": "<detailed overall assessment>",
    "criteria": {"requirement_coverage": <number>, "code_quality": <number>, "best_practices": <number>, "functionality": <number>, "maintainability": <number>}
}`

// EvaluationUserTemplate is the user prompt for code evaluation.
const EvaluationUserTemplate = `Work Item: {{.Title}}
Description:
{{.Description}}

Acceptance Criteria:
{{.AcceptanceCriteria}}

Generated Code:
{{.Code}}

Evaluate this code against the work item requirements.`
