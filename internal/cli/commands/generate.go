package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/cli/printer"
	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

type generateOptions struct {
	owner       string
	topic       string
	description string
	difficulty  string
	language    string
	public      bool
	wait        bool
	timeout     time.Duration
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	g := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Plan a course and queue its generation",
		Long: `Plan a course for a topic and queue generation of its first module.

With --wait the command also runs queued jobs in this process (runner.mode=db)
or polls the course (runner.mode=temporal) until generation completes or fails.

Examples:
  coursegen generate --owner 7d0c... --topic "Go concurrency"
  coursegen generate --owner 7d0c... --topic "Linear algebra" --difficulty advanced --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := uuid.Parse(g.owner)
			if err != nil {
				return printer.Error("invalid --owner", fmt.Sprintf("%q is not a UUID", g.owner), nil)
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			printer.Step("planning %q\n", g.topic)
			res, err := a.Services.CourseGen.CreateCourse(ctx, coursegen.CreateCourseRequest{
				OwnerUserID: owner,
				Topic:       g.topic,
				Description: g.description,
				Difficulty:  g.difficulty,
				Language:    g.language,
				IsPublic:    g.public,
			})
			if err != nil {
				return printer.Error("course planning failed", err.Error(), generateHints(err))
			}
			printer.Success("created course %s\n", res.Course.ID)
			printer.Info("  title:   %s\n", res.Course.Title)
			printer.Info("  modules: %d\n", len(res.Modules))
			if res.Job != nil {
				printer.Info("  job:     %s %s\n", res.Job.JobType, printer.Faint(res.Job.ID.String()))
			}
			if !g.wait {
				printer.Info("\nFollow progress with: coursegen status %s\n", res.Course.ID)
				return nil
			}

			if a.Services.Worker == nil {
				printer.Warning("runner.mode=%s: jobs run in worker processes, polling the course\n", a.Cfg.Runner.Mode)
			}
			waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			course, err := waitForCourse(waitCtx, a, res.Course.ID)
			if err != nil {
				return printer.Error("generation did not finish", err.Error(), []string{
					fmt.Sprintf("Check progress with: coursegen status %s", res.Course.ID),
				})
			}
			if course.Status == domain.CourseStatusFailed {
				return printer.Error("generation failed", fmt.Sprintf("stage %s: %s", course.FailedStage, course.ErrorMessage), []string{
					fmt.Sprintf("Resume with: POST /api/courses/%s/resume", course.ID),
				})
			}
			printer.Success("course %s generated\n", course.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&g.owner, "owner", "", "Owner user id (UUID)")
	cmd.Flags().StringVar(&g.topic, "topic", "", "Course topic")
	cmd.Flags().StringVar(&g.description, "description", "", "Optional course description")
	cmd.Flags().StringVar(&g.difficulty, "difficulty", domain.DifficultyBeginner, "beginner, intermediate or advanced")
	cmd.Flags().StringVar(&g.language, "language", "en", "Content language")
	cmd.Flags().BoolVar(&g.public, "public", false, "Make the course readable by everyone")
	cmd.Flags().BoolVar(&g.wait, "wait", false, "Block until generation completes or fails")
	cmd.Flags().DurationVar(&g.timeout, "timeout", 30*time.Minute, "Maximum time to wait with --wait")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func generateHints(err error) []string {
	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		return []string{"Check --topic and --difficulty"}
	case apierr.KindProvider, apierr.KindSchemaMismatch:
		return []string{"Check openai.api_key and openai.model, then retry"}
	}
	return nil
}

// waitForCourse drives the course to a terminal status. In db mode it runs
// the queue itself; otherwise another process runs the jobs.
func waitForCourse(ctx context.Context, a *app.App, courseID uuid.UUID) (*domain.Course, error) {
	poll := a.Cfg.Runner.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	lastStage := ""
	for {
		if w := a.Services.Worker; w != nil {
			if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
				return nil, err
			}
		}
		d, err := a.Services.CourseGen.CourseData(ctx, courseID)
		if err != nil {
			return nil, err
		}
		p := coursegen.ComputeProgress(d.Course, d.Modules, d.Chapters)
		if stage := fmt.Sprintf("%d/%d chapters", p.CompletedChapters, p.TotalChapters); stage != lastStage {
			printer.Step("%s (%d%%)\n", stage, p.ProgressPercentage)
			lastStage = stage
		}
		switch d.Course.Status {
		case domain.CourseStatusComplete, domain.CourseStatusFailed:
			return d.Course, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}
