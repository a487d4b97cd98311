package prompts

type Name string

const (
	PromptCoursePlan     Name = "course_plan"
	PromptModuleOutline  Name = "module_outline"
	PromptChapterContent Name = "chapter_content"
	PromptModuleQuiz     Name = "module_quiz"
)
