package coursegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/aggregates"
	"github.com/yungbote/coursegen/internal/data/repos"
	"github.com/yungbote/coursegen/internal/data/repos/testutil"
	"github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/qdrant"
	"github.com/yungbote/coursegen/internal/services"
)

type llmCall struct {
	Schema string
	System string
	User   string
}

type llmReply struct {
	out   map[string]any
	err   error
	panic any
}

// fakeLLM answers from per-schema queues first, then from defaults.
type fakeLLM struct {
	mu       sync.Mutex
	queue    map[string][]llmReply
	calls    []llmCall
	embedErr error
	seq      int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{queue: map[string][]llmReply{}}
}

func (f *fakeLLM) push(schema string, out map[string]any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[schema] = append(f.queue[schema], llmReply{out: out, err: err})
}

// pushPanic makes the next call for schema panic with v.
func (f *fakeLLM) pushPanic(schema string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[schema] = append(f.queue[schema], llmReply{panic: v})
}

func (f *fakeLLM) callsFor(schema string) []llmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llmCall
	for _, c := range f.calls {
		if c.Schema == schema {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, llmCall{Schema: schemaName, System: system, User: user})
	if q := f.queue[schemaName]; len(q) > 0 {
		f.queue[schemaName] = q[1:]
		f.mu.Unlock()
		if q[0].panic != nil {
			panic(q[0].panic)
		}
		return q[0].out, q[0].err
	}
	f.seq++
	seq := f.seq
	f.mu.Unlock()
	return defaultReply(schemaName, user, seq)
}

func (f *fakeLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		h := fnv.New64a()
		_, _ = h.Write([]byte(s))
		v := h.Sum64()
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = float32((v>>(j*8))&0xff) / 255
		}
		out[i] = vec
	}
	return out, nil
}

var (
	reChapters  = regexp.MustCompile(`exactly (\d+) chapters`)
	reQuestions = regexp.MustCompile(`exactly (\d+) questions`)
)

func wantCount(re *regexp.Regexp, user string) int {
	m := re.FindStringSubmatch(user)
	if len(m) < 2 {
		return 1
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func defaultReply(schema, user string, seq int) (map[string]any, error) {
	switch schema {
	case "course_plan":
		return planReply("Concurrency in Go", 2, 1, 1), nil
	case "module_outline":
		n := wantCount(reChapters, user)
		chapters := make([]any, n)
		for i := range chapters {
			chapters[i] = map[string]any{"title": fmt.Sprintf("Part %d-%d", seq, i+1), "outline": "what it teaches"}
		}
		return map[string]any{"chapters": chapters}, nil
	case "chapter_content":
		return chapterReply(fmt.Sprintf("body %d", seq)), nil
	case "module_quiz":
		return quizReply(wantCount(reQuestions, user)), nil
	}
	return nil, errors.New("unexpected schema " + schema)
}

func planReply(title string, chapters ...int) map[string]any {
	modules := make([]any, len(chapters))
	for i, n := range chapters {
		modules[i] = map[string]any{
			"title":              fmt.Sprintf("Module %c", 'A'+i),
			"summary":            "covers things",
			"estimated_chapters": n,
		}
	}
	return map[string]any{"title": title, "description": "d", "subject": "cs", "modules": modules}
}

func wire(kind string, fields map[string]any) map[string]any {
	w := map[string]any{
		"type": kind, "md": "", "language": "", "code": "", "filename": "", "format": "",
		"source": "", "caption": "", "latex": "", "style": "", "items": []any{},
	}
	for k, v := range fields {
		w[k] = v
	}
	return w
}

func chapterReply(text string) map[string]any {
	return map[string]any{"blocks": []any{
		wire("text", map[string]any{"md": text}),
		wire("code", map[string]any{"language": "go", "code": "fmt.Println(1)"}),
		wire("list", map[string]any{"style": "bullet", "items": []any{"one", "two"}}),
	}}
}

func quizReply(n int) map[string]any {
	qs := make([]any, n)
	for i := range qs {
		qs[i] = map[string]any{
			"prompt":       fmt.Sprintf("Question %d?", i+1),
			"options":      []any{"a", "b", "c"},
			"answer_index": 1,
			"explanation":  "because",
		}
	}
	return map[string]any{"questions": qs}
}

type fakeVectors struct {
	mu     sync.Mutex
	points map[string]map[string]qdrant.Vector
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{points: map[string]map[string]qdrant.Vector{}}
}

func (f *fakeVectors) Upsert(ctx context.Context, ns string, vectors []qdrant.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.points[ns] == nil {
		f.points[ns] = map[string]qdrant.Vector{}
	}
	for _, v := range vectors {
		f.points[ns][v.ID] = v
	}
	return nil
}

func (f *fakeVectors) QueryMatches(ctx context.Context, ns string, q []float32, topK int, exclude []string) ([]qdrant.VectorMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skip := map[string]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []qdrant.VectorMatch
	for id, v := range f.points[ns] {
		if skip[id] {
			continue
		}
		out = append(out, qdrant.VectorMatch{ID: id, Score: 0.9, Metadata: v.Metadata})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeVectors) count(ns string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points[ns])
}

type harness struct {
	svc     *Service
	db      *gorm.DB
	llm     *fakeLLM
	vectors *fakeVectors
	owner   uuid.UUID
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	agg := aggregates.NewCourseAggregate(aggregates.CourseAggregateDeps{
		Base:     aggregates.BaseDeps{DB: db, Log: log},
		Courses:  set.Courses,
		Modules:  set.Modules,
		Chapters: set.Chapters,
		Quizzes:  set.Quizzes,
	})
	llm := newFakeLLM()
	vectors := newFakeVectors()
	cfg := DefaultConfig()
	cfg.PlanBackoff = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := New(Deps{
		DB:        db,
		Log:       log,
		LLM:       llm,
		Vectors:   vectors,
		Courses:   set.Courses,
		Modules:   set.Modules,
		Chapters:  set.Chapters,
		Quizzes:   set.Quizzes,
		Aggregate: agg,
		Jobs:      services.NewJobService(db, log, set.Jobs, nil, services.JobDefaults{}, nil, ""),
	}, cfg)
	require.NoError(t, err)
	return &harness{svc: svc, db: db, llm: llm, vectors: vectors, owner: uuid.New()}
}

func (h *harness) create(t *testing.T) *CreateCourseResult {
	t.Helper()
	res, err := h.svc.CreateCourse(context.Background(), CreateCourseRequest{OwnerUserID: h.owner, Topic: "goroutines"})
	require.NoError(t, err)
	return res
}

// drain plays the job runner: it runs queued jobs oldest first until none is
// left. A non-retryable failure fails the course the way the stage handlers do.
func (h *harness) drain(t *testing.T, check func()) []string {
	t.Helper()
	ctx := context.Background()
	var ran []string
	for i := 0; i < 200; i++ {
		var job domain.JobRun
		require.NoError(t, h.db.Where("status = ?", domain.JobStatusQueued).Order("created_at ASC").Limit(1).Find(&job).Error)
		if job.ID == uuid.Nil {
			return ran
		}
		ran = append(ran, job.JobType)
		var p map[string]string
		require.NoError(t, json.Unmarshal(job.Payload, &p))
		courseID, moduleID := uuid.MustParse(p["course_id"]), uuid.MustParse(p["module_id"])
		trig := Trigger{JobID: &job.ID}

		var err error
		switch job.JobType {
		case JobModuleGenerate:
			_, err = h.svc.GenerateModule(ctx, GenerateModuleInput{CourseID: courseID, ModuleID: moduleID, Trigger: trig})
		case JobChapterGenerate:
			_, err = h.svc.GenerateChapter(ctx, GenerateChapterInput{CourseID: courseID, ModuleID: moduleID, ChapterID: uuid.MustParse(p["chapter_id"]), Trigger: trig})
		case JobQuizGenerate:
			_, err = h.svc.GenerateQuiz(ctx, GenerateQuizInput{CourseID: courseID, ModuleID: moduleID, Trigger: trig})
		case JobCourseAdvance:
			_, err = h.svc.Advance(ctx, AdvanceInput{CourseID: courseID, ModuleID: moduleID, Trigger: trig})
		default:
			t.Fatalf("unknown job type %s", job.JobType)
		}
		status := domain.JobStatusSucceeded
		if err != nil {
			require.False(t, apierr.IsRetryable(err), "retryable error in drain: %v", err)
			status = domain.JobStatusFailed
			require.NoError(t, h.svc.MarkFailed(ctx, courseID, StageForJob(job.JobType), err))
		}
		require.NoError(t, h.db.Model(&domain.JobRun{}).Where("id = ?", job.ID).Update("status", status).Error)
		if check != nil {
			check()
		}
	}
	t.Fatal("drain did not settle")
	return ran
}

func (h *harness) data(t *testing.T, courseID uuid.UUID) *CourseData {
	t.Helper()
	d, err := h.svc.CourseData(context.Background(), courseID)
	require.NoError(t, err)
	return d
}

// requireTreeInvariants checks the unlock and completion rules on stored rows.
func requireTreeInvariants(t *testing.T, d *CourseData) {
	t.Helper()
	quizzes := map[uuid.UUID]bool{}
	for _, q := range d.Quizzes {
		quizzes[q.ModuleID] = true
	}
	chapters := map[uuid.UUID][]*domain.Chapter{}
	for _, ch := range d.Chapters {
		chapters[ch.ModuleID] = append(chapters[ch.ModuleID], ch)
		if ch.IsCompleted {
			require.True(t, ch.IsGenerated)
		}
	}
	for i, m := range d.Modules {
		if !m.IsLocked {
			for j := 0; j < i; j++ {
				require.True(t, d.Modules[j].IsCompleted, "module %d unlocked before module %d completed", i, j)
			}
		} else {
			for _, ch := range chapters[m.ID] {
				require.False(t, ch.IsGenerated, "locked module %d has generated chapters", i)
			}
		}
		if m.IsCompleted {
			require.False(t, m.IsLocked)
			require.True(t, quizzes[m.ID], "completed module %d has no quiz", i)
			require.NotEmpty(t, chapters[m.ID])
			for _, ch := range chapters[m.ID] {
				require.True(t, ch.IsGenerated)
				require.NotEmpty(t, ch.Blocks())
			}
		}
	}
}

func countJobs(ran []string, jobType string) int {
	n := 0
	for _, r := range ran {
		if r == jobType {
			n++
		}
	}
	return n
}
