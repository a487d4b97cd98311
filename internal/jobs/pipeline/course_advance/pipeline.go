package course_advance

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
	if p == nil || p.orch == nil {
		jc.Fail("validate", fmt.Errorf("course_advance: pipeline not configured"))
		return nil
	}
	courseID, _ := jc.PayloadUUID("course_id")
	moduleID, _ := jc.PayloadUUID("module_id")
	if courseID == uuid.Nil || moduleID == uuid.Nil {
		jc.Fail("validate", apierr.Validation("missing course_id or module_id"))
		return nil
	}
	jobID := jc.Job.ID
	res, err := p.orch.Advance(jc.Ctx, coursegen.AdvanceInput{
		CourseID: courseID,
		ModuleID: moduleID,
		Trigger:  coursegen.Trigger{JobID: &jobID, Progress: jc.Progress},
	})
	if err != nil {
		return err
	}
	result := map[string]any{
		"module_id":       moduleID,
		"advanced":        res.Advanced,
		"course_complete": res.CourseComplete,
	}
	if res.NextModule != nil {
		result["next_module_id"] = res.NextModule.ID
	}
	jc.Succeed("done", result)
	return nil
}

func (p *Pipeline) OnTerminalFailure(jc *jobrt.Context, cause error) {
	courseID, ok := jc.PayloadUUID("course_id")
	if !ok {
		return
	}
	if err := p.orch.MarkFailed(jc.Ctx, courseID, coursegen.StageAdvance, cause); err != nil {
		p.log.Error("mark course failed", "course_id", courseID, "job_id", jc.Job.ID, "error", err)
	}
}
