package prompts

// Input is a superset of the fields any prompt needs. Missing fields render
// as empty strings.
type Input struct {
	// Course
	Topic       string
	Description string
	Subject     string
	Difficulty  string
	Language    string
	CourseTitle string
	MaxModules  int

	// Module
	ModuleIndex      int
	ModuleTitle      string
	ModuleSummary    string
	ChapterCount     int
	PriorModulesMD   string
	ModuleChaptersMD string

	// Chapter
	ChapterIndex   int
	ChapterTitle   string
	ChapterOutline string
	ReferencesMD   string

	// Quiz
	QuestionCount int
	ChapterDigest string

	// FixNote carries the rejection reason of the previous attempt.
	FixNote string
}
