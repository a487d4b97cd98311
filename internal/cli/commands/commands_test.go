package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/coursegen/internal/cli/printer"
	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
)

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	root := NewRootCmd("test")
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(nil)

	require.NoError(t, root.Execute())
	out := buf.String()
	assert.Contains(t, out, "Usage:")
	for _, sub := range []string{"serve", "worker", "migrate", "generate", "status"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	root := NewRootCmd("test")
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"--topic", "go"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestGenerateRequiresOwnerAndTopic(t *testing.T) {
	root := NewRootCmd("test")
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"generate", "--topic", "Go"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestStatusValidatesArgsBeforeConnecting(t *testing.T) {
	cases := [][]string{
		{"status", "not-a-uuid"},
		{"status", uuid.NewString(), "--format", "xml"},
	}
	for _, args := range cases {
		root := NewRootCmd("test")
		root.SetOut(new(bytes.Buffer))
		root.SetErr(new(bytes.Buffer))
		root.SetArgs(args)

		err := root.Execute()
		require.Error(t, err, args)
		assert.True(t, printer.Reported(err), args)
	}
}

func sampleCourseData() (*coursegen.CourseData, []coursegen.StageStatus) {
	course := &domain.Course{
		ID:           uuid.New(),
		Title:        "Go concurrency",
		Status:       domain.CourseStatusGenerating,
		GenerationID: uuid.New(),
	}
	m0 := &domain.Module{ID: uuid.New(), CourseID: course.ID, Index: 0, Title: "Goroutines", EstimatedChapters: 2, IsCompleted: true}
	m1 := &domain.Module{ID: uuid.New(), CourseID: course.ID, Index: 1, Title: "Channels", EstimatedChapters: 3}
	m2 := &domain.Module{ID: uuid.New(), CourseID: course.ID, Index: 2, Title: "Select", EstimatedChapters: 2, IsLocked: true}
	chapters := []*domain.Chapter{
		{ID: uuid.New(), ModuleID: m0.ID, Index: 0, IsGenerated: true},
		{ID: uuid.New(), ModuleID: m0.ID, Index: 1, IsGenerated: true},
		{ID: uuid.New(), ModuleID: m1.ID, Index: 0, IsGenerated: true},
		{ID: uuid.New(), ModuleID: m1.ID, Index: 1},
		{ID: uuid.New(), ModuleID: m1.ID, Index: 2},
	}
	d := &coursegen.CourseData{
		Course:   course,
		Modules:  []*domain.Module{m2, m0, m1},
		Chapters: chapters,
		Quizzes:  []*domain.Quiz{{ID: uuid.New(), ModuleID: m0.ID, CourseID: course.ID}},
	}
	stages := []coursegen.StageStatus{
		{Stage: coursegen.StageModule, Runs: 2, Job: &domain.JobRun{ID: uuid.New(), Status: domain.JobStatusSucceeded, Attempts: 1}},
		{Stage: coursegen.StageChapter, Runs: 5, Job: &domain.JobRun{ID: uuid.New(), Status: domain.JobStatusRetrying, Attempts: 2, Error: "upstream 503"}},
	}
	return d, stages
}

func TestBuildStatusReport(t *testing.T) {
	d, stages := sampleCourseData()
	r := buildStatusReport(d, stages)

	require.Equal(t, d.Course.ID.String(), r.CourseID)
	require.Equal(t, domain.CourseStatusGenerating, r.Status)
	require.Equal(t, 3, r.Progress.TotalModules)
	require.Equal(t, 1, r.Progress.CompletedModules)
	require.Equal(t, 7, r.Progress.TotalChapters)
	require.Equal(t, 3, r.Progress.CompletedChapters)

	require.Len(t, r.Modules, 3)
	require.Equal(t, []string{"Goroutines", "Channels", "Select"}, []string{r.Modules[0].Title, r.Modules[1].Title, r.Modules[2].Title})
	require.True(t, r.Modules[0].HasQuiz)
	require.Equal(t, 2, r.Modules[0].Generated)
	require.Equal(t, 1, r.Modules[1].Generated)
	require.Equal(t, 3, r.Modules[1].Chapters)
	require.True(t, r.Modules[2].Locked)

	require.Len(t, r.Stages, 2)
	require.Equal(t, domain.JobStatusRetrying, r.Stages[1].Status)
	require.Equal(t, "upstream 503", r.Stages[1].Error)
}

func TestRenderStatusFormats(t *testing.T) {
	d, stages := sampleCourseData()
	r := buildStatusReport(d, stages)

	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, formatJSON, r))
	var fromJSON statusReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	require.Equal(t, r.CourseID, fromJSON.CourseID)
	require.Equal(t, r.Progress, fromJSON.Progress)

	buf.Reset()
	require.NoError(t, renderStatus(&buf, formatYAML, r))
	require.Contains(t, buf.String(), "course_id: "+r.CourseID)
	var fromYAML statusReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Equal(t, r.Modules, fromYAML.Modules)

	buf.Reset()
	require.NoError(t, renderStatus(&buf, formatText, r))
	text := buf.String()
	require.Contains(t, text, "Go concurrency")
	require.Contains(t, text, "progress: 42% (3/7 chapters, 1/3 modules)")
	require.Contains(t, text, "Channels")
	require.Contains(t, text, "upstream 503")
	lines := strings.Split(text, "\n")
	require.Greater(t, len(lines), 8)
}
