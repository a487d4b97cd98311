package chapter_generate

import (
	"fmt"

	"github.com/google/uuid"

	jobrt "github.com/yungbote/coursegen/internal/jobs/runtime"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p == nil || p.gen == nil {
		jc.Fail("validate", fmt.Errorf("chapter_generate: pipeline not configured"))
		return nil
	}
	courseID, _ := jc.PayloadUUID("course_id")
	moduleID, _ := jc.PayloadUUID("module_id")
	chapterID, _ := jc.PayloadUUID("chapter_id")
	if courseID == uuid.Nil || moduleID == uuid.Nil || chapterID == uuid.Nil {
		jc.Fail("validate", apierr.Validation("missing course_id, module_id or chapter_id"))
		return nil
	}
	jobID := jc.Job.ID
	out, err := p.gen.GenerateChapter(jc.Ctx, coursegen.GenerateChapterInput{
		CourseID:  courseID,
		ModuleID:  moduleID,
		ChapterID: chapterID,
		Trigger:   coursegen.Trigger{JobID: &jobID, Progress: jc.Progress},
	})
	if err != nil {
		return err
	}
	result := map[string]any{
		"chapter_id":   chapterID,
		"changed":      out.Changed,
		"module_ready": out.ModuleReady,
		"references":   out.References,
	}
	if out.QuizJob != nil {
		result["quiz_job_id"] = out.QuizJob.ID
	}
	jc.Succeed("done", result)
	return nil
}

func (p *Pipeline) OnTerminalFailure(jc *jobrt.Context, cause error) {
	courseID, ok := jc.PayloadUUID("course_id")
	if !ok {
		return
	}
	if err := p.gen.MarkFailed(jc.Ctx, courseID, coursegen.StageChapter, cause); err != nil {
		p.log.Error("mark course failed", "course_id", courseID, "job_id", jc.Job.ID, "error", err)
	}
}
