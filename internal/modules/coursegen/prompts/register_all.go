package prompts

func RegisterAll() {
	RegisterSpec(Spec{
		Name:       PromptCoursePlan,
		Version:    1,
		SchemaName: "course_plan",
		Schema:     CoursePlanSchema,
		System: `
You design self-paced courses. A course is an ordered list of modules; each
module builds on the ones before it. Return JSON only.`,
		User: `
Topic: {{.Topic}}
{{if .Description}}Learner notes: {{.Description}}
{{end}}Difficulty: {{.Difficulty}}
Language: {{.Language}}

Rules:
- title: short course title.
- description: 2-4 sentences.
- subject: one or two words.
- modules: 1 to {{.MaxModules}} modules in teaching order, titles unique.
- summary: 1-3 sentences on what the module covers.
- estimated_chapters: integer from 1 to 10.`,
		Validators: []Validator{
			RequireNonEmpty("Topic", func(in Input) string { return in.Topic }),
			RequireNonEmpty("Difficulty", func(in Input) string { return in.Difficulty }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptModuleOutline,
		Version:    1,
		SchemaName: "module_outline",
		Schema:     ModuleOutlineSchema,
		System: `
You outline one module of a course. Chapters must follow from what earlier
modules already taught and must not repeat it. Return JSON only.`,
		User: `
Course: {{.CourseTitle}} ({{.Difficulty}}, {{.Language}})
Module {{.ModuleIndex}}: {{.ModuleTitle}}
Module summary: {{.ModuleSummary}}

Earlier modules:
{{if .PriorModulesMD}}{{.PriorModulesMD}}{{else}}(none, this is the first module){{end}}

Rules:
- chapters: exactly {{.ChapterCount}} chapters in teaching order.
- title: unique within the module.
- outline: 2-5 sentences on what the chapter teaches.`,
		Validators: []Validator{
			RequireNonEmpty("CourseTitle", func(in Input) string { return in.CourseTitle }),
			RequireNonEmpty("ModuleTitle", func(in Input) string { return in.ModuleTitle }),
			RequirePositive("ChapterCount", func(in Input) int { return in.ChapterCount }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptChapterContent,
		Version:    1,
		SchemaName: "chapter_content",
		Schema:     ChapterContentSchema,
		System: `
You write one chapter of a course as an ordered list of content blocks.
Block types: text (md), code (language, code, optional filename), diagram
(format mermaid|graphviz|ascii, source, optional caption), formula (latex,
optional caption), list (style bullet|numbered, items). Leave fields that do
not apply to a block as empty strings or an empty list. Return JSON only.`,
		User: `
Course: {{.CourseTitle}} ({{.Difficulty}}, {{.Language}})
Module: {{.ModuleTitle}}
Chapters in this module:
{{.ModuleChaptersMD}}

Write chapter {{.ChapterIndex}}: {{.ChapterTitle}}
Outline: {{.ChapterOutline}}
{{if .ReferencesMD}}
Related chapters the learner has already read:
{{.ReferencesMD}}
{{end}}
Rules:
- Start with a text block that introduces the chapter.
- Use code, diagram, formula and list blocks only where they help.
- 6 to 20 blocks.`,
		Validators: []Validator{
			RequireNonEmpty("ChapterTitle", func(in Input) string { return in.ChapterTitle }),
			RequireNonEmpty("ModuleTitle", func(in Input) string { return in.ModuleTitle }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptModuleQuiz,
		Version:    1,
		SchemaName: "module_quiz",
		Schema:     ModuleQuizSchema,
		System: `
You write multiple-choice quizzes that check understanding of a module.
Every question has exactly one correct option. Return JSON only.`,
		User: `
Course: {{.CourseTitle}} ({{.Difficulty}})
Module: {{.ModuleTitle}}

Chapter digest:
{{.ChapterDigest}}

Rules:
- questions: exactly {{.QuestionCount}} questions.
- options: 3 to 5 options.
- answer_index: zero-based index of the correct option.
- explanation: one or two sentences.`,
		Validators: []Validator{
			RequireNonEmpty("ChapterDigest", func(in Input) string { return in.ChapterDigest }),
			RequirePositive("QuestionCount", func(in Input) int { return in.QuestionCount }),
		},
	})
}
