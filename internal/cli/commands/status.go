package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/coursegen/internal/cli/printer"
	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type statusReport struct {
	CourseID     string         `json:"course_id" yaml:"course_id"`
	Title        string         `json:"title" yaml:"title"`
	Status       string         `json:"status" yaml:"status"`
	GenerationID string         `json:"generation_id" yaml:"generation_id"`
	FailedStage  string         `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Error        string         `json:"error,omitempty" yaml:"error,omitempty"`
	Progress     progressReport `json:"progress" yaml:"progress"`
	Modules      []moduleReport `json:"modules" yaml:"modules"`
	Stages       []stageReport  `json:"stages" yaml:"stages"`
}

type progressReport struct {
	Percentage        int `json:"percentage" yaml:"percentage"`
	CompletedModules  int `json:"completed_modules" yaml:"completed_modules"`
	TotalModules      int `json:"total_modules" yaml:"total_modules"`
	CompletedChapters int `json:"completed_chapters" yaml:"completed_chapters"`
	TotalChapters     int `json:"total_chapters" yaml:"total_chapters"`
}

type moduleReport struct {
	Index     int    `json:"index" yaml:"index"`
	Title     string `json:"title" yaml:"title"`
	Locked    bool   `json:"locked" yaml:"locked"`
	Completed bool   `json:"completed" yaml:"completed"`
	Generated int    `json:"chapters_generated" yaml:"chapters_generated"`
	Chapters  int    `json:"chapters" yaml:"chapters"`
	HasQuiz   bool   `json:"has_quiz" yaml:"has_quiz"`
}

type stageReport struct {
	Stage    string `json:"stage" yaml:"stage"`
	Status   string `json:"status" yaml:"status"`
	Runs     int    `json:"runs" yaml:"runs"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	JobID    string `json:"job_id" yaml:"job_id"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status COURSE_ID",
		Short: "Show generation progress of a course",
		Long: `Show the course status, per-module chapter counts and the latest job
of each pipeline stage.

Output formats:
  text - human-readable summary (default)
  json - one JSON document
  yaml - one YAML document`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := uuid.Parse(args[0])
			if err != nil {
				return printer.Error("invalid course id", fmt.Sprintf("%q is not a UUID", args[0]), nil)
			}
			switch format {
			case formatText, formatJSON, formatYAML:
			default:
				return printer.Error("invalid --format", fmt.Sprintf("unknown format %q", format), []string{"Use text, json or yaml"})
			}
			ctx := cmd.Context()
			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Services.CourseGen.CourseData(ctx, courseID)
			if err != nil {
				return printer.Error("course not found", err.Error(), nil)
			}
			stages, err := a.Services.CourseGen.GenerationStatus(ctx, courseID)
			if err != nil {
				return printer.Error("job status unavailable", err.Error(), nil)
			}
			return renderStatus(cmd.OutOrStdout(), format, buildStatusReport(d, stages))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}

func buildStatusReport(d *coursegen.CourseData, stages []coursegen.StageStatus) statusReport {
	c := d.Course
	p := coursegen.ComputeProgress(c, d.Modules, d.Chapters)
	r := statusReport{
		CourseID:     c.ID.String(),
		Title:        c.Title,
		Status:       c.Status,
		GenerationID: c.GenerationID.String(),
		FailedStage:  c.FailedStage,
		Error:        c.ErrorMessage,
		Progress: progressReport{
			Percentage:        p.ProgressPercentage,
			CompletedModules:  p.CompletedModules,
			TotalModules:      p.TotalModules,
			CompletedChapters: p.CompletedChapters,
			TotalChapters:     p.TotalChapters,
		},
		Modules: make([]moduleReport, 0, len(d.Modules)),
		Stages:  make([]stageReport, 0, len(stages)),
	}

	chapters := map[uuid.UUID][]*domain.Chapter{}
	for _, ch := range d.Chapters {
		chapters[ch.ModuleID] = append(chapters[ch.ModuleID], ch)
	}
	quizzes := map[uuid.UUID]bool{}
	for _, q := range d.Quizzes {
		quizzes[q.ModuleID] = true
	}
	for _, m := range d.Modules {
		mr := moduleReport{
			Index:     m.Index,
			Title:     m.Title,
			Locked:    m.IsLocked,
			Completed: m.IsCompleted,
			Chapters:  max(len(chapters[m.ID]), m.EstimatedChapters),
			HasQuiz:   quizzes[m.ID],
		}
		for _, ch := range chapters[m.ID] {
			if ch.IsGenerated {
				mr.Generated++
			}
		}
		r.Modules = append(r.Modules, mr)
	}
	sort.Slice(r.Modules, func(i, j int) bool { return r.Modules[i].Index < r.Modules[j].Index })

	for _, st := range stages {
		sr := stageReport{Stage: st.Stage, Runs: st.Runs}
		if st.Job != nil {
			sr.Status = st.Job.Status
			sr.Attempts = st.Job.Attempts
			sr.JobID = st.Job.ID.String()
			sr.Error = st.Job.Error
		}
		r.Stages = append(r.Stages, sr)
	}
	return r
}

func renderStatus(w io.Writer, format string, r statusReport) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(w, "%s  %s\n", r.Title, printer.Faint(r.CourseID))
	fmt.Fprintf(w, "status:   %s\n", printer.Status(r.Status))
	if r.FailedStage != "" {
		fmt.Fprintf(w, "failed:   %s: %s\n", r.FailedStage, r.Error)
	}
	fmt.Fprintf(w, "progress: %d%% (%d/%d chapters, %d/%d modules)\n\n",
		r.Progress.Percentage,
		r.Progress.CompletedChapters, r.Progress.TotalChapters,
		r.Progress.CompletedModules, r.Progress.TotalModules,
	)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tMODULE\tCHAPTERS\tQUIZ\tSTATE")
	for _, m := range r.Modules {
		state := "open"
		switch {
		case m.Completed:
			state = "completed"
		case m.Locked:
			state = "locked"
		}
		quiz := "-"
		if m.HasQuiz {
			quiz = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%s\t%s\n", m.Index+1, m.Title, m.Generated, m.Chapters, quiz, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Stages) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tSTATUS\tRUNS\tATTEMPTS\tERROR")
		for _, s := range r.Stages {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.Stage, printer.Status(s.Status), s.Runs, s.Attempts, strings.TrimSpace(s.Error))
		}
		return tw.Flush()
	}
	return nil
}
