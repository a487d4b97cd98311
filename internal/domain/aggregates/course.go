package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/domain/content"
	"github.com/yungbote/coursegen/internal/domain/learning"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
)

// Contract describes the transaction policy an aggregate implements.
type Contract struct {
	Name string
	// Owner is the component allowed to call the contract's cursor writes.
	Owner string
	Notes string
}

var CourseAggregateContract = Contract{
	Name:  "Learning.Course",
	Owner: "coursegen.Orchestrator",
	Notes: "unlock and cursor transitions are orchestrator-only; generators write content fields of their own entity",
}

// InTx runs inside the aggregate's transaction after its own writes. It is
// how callers enqueue successor jobs atomically with a state transition.
type InTx func(dbc dbctx.Context) error

type CreateSkeletonInput struct {
	Course   *learning.Course
	Modules  []*learning.Module
	Chapters []*learning.Chapter
	Then     InTx
}

type ChapterOutline struct {
	Title   string
	Outline string
}

type CommitOutlineInput struct {
	ModuleID uuid.UUID
	Outlines []ChapterOutline
}

type CommitOutlineResult struct {
	Chapters []*learning.Chapter
	// Reused is true when chapters were already generated and the stored
	// outline was kept.
	Reused bool
}

type CommitChapterInput struct {
	ChapterID   uuid.UUID
	Blocks      content.Blocks
	References  []learning.Reference
	ContentHash string
	At          time.Time
}

type CommitChapterResult struct {
	Chapter *learning.Chapter
	// Changed is false when the stored content hash already matched.
	Changed bool
	// ModuleReady is true when every chapter of the module is generated.
	ModuleReady bool
}

type CommitQuizInput struct {
	Quiz *learning.Quiz
}

type AdvanceInput struct {
	CourseID uuid.UUID
	ModuleID uuid.UUID
	// Then runs only when the call performed the transition.
	Then func(dbc dbctx.Context, res AdvanceResult) error
}

type AdvanceResult struct {
	// Advanced is false when the module was already completed.
	Advanced       bool
	NextModule     *learning.Module
	CourseComplete bool
}

type MarkFailedInput struct {
	CourseID uuid.UUID
	Stage    string
	Message  string
}

type ResumeInput struct {
	CourseID uuid.UUID
	Then     func(dbc dbctx.Context, course *learning.Course) error
}

type CourseAggregate interface {
	Contract() Contract

	CreateSkeleton(ctx context.Context, in CreateSkeletonInput) error
	CommitOutline(ctx context.Context, in CommitOutlineInput) (CommitOutlineResult, error)
	CommitChapter(ctx context.Context, in CommitChapterInput) (CommitChapterResult, error)
	CommitQuiz(ctx context.Context, in CommitQuizInput) (*learning.Quiz, error)
	MoveChapterCursor(ctx context.Context, moduleID uuid.UUID) (*uuid.UUID, error)
	Advance(ctx context.Context, in AdvanceInput) (AdvanceResult, error)
	MarkFailed(ctx context.Context, in MarkFailedInput) (bool, error)
	Resume(ctx context.Context, in ResumeInput) (*learning.Course, error)
	MarkChapterCompleted(ctx context.Context, chapterID uuid.UUID, completed bool) (*learning.Chapter, error)
}
