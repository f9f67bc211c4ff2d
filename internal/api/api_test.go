package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/orchestrator"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/project"
	"github.com/example/mathvideo/internal/store"
)

type fakePipeline struct {
	mu         sync.Mutex
	submitted  []orchestrator.Request
	submitErr  error
	section    orchestrator.SectionResult
	sectionErr error
	critique   models.Critique
	refined    []string
	tasks      map[string]models.Task
}

func (f *fakePipeline) Submit(_ context.Context, req orchestrator.Request) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return models.Task{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return models.Task{ID: "task-1", Slug: "demo-abc123", Render: req.Render, Status: models.StatusPending}, nil
}

func (f *fakePipeline) GetTask(_ context.Context, id string) (models.Task, error) {
	if t, ok := f.tasks[id]; ok {
		return t, nil
	}
	return models.Task{}, store.ErrTaskNotFound
}

func (f *fakePipeline) ListTasks(context.Context, int) ([]models.Task, error) {
	var out []models.Task
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakePipeline) RegenerateSection(_ context.Context, _, id string) (orchestrator.SectionResult, error) {
	if f.sectionErr != nil {
		return orchestrator.SectionResult{}, f.sectionErr
	}
	res := f.section
	res.SectionID = id
	return res, nil
}

func (f *fakePipeline) CritiqueSection(context.Context, string, string) (models.Critique, error) {
	return f.critique, f.sectionErr
}

func (f *fakePipeline) RefineSection(_ context.Context, slug, id, custom string) (orchestrator.SectionResult, error) {
	f.mu.Lock()
	f.refined = append(f.refined, id+":"+custom)
	f.mu.Unlock()
	return f.RegenerateSection(context.Background(), slug, id)
}

func (f *fakePipeline) RenderSection(ctx context.Context, slug, id string) (orchestrator.SectionResult, error) {
	return f.RegenerateSection(ctx, slug, id)
}

type harness struct {
	pipe     *fakePipeline
	hub      *orchestrator.Hub
	projects *project.Store
	server   *Server
}

func newHarness(t *testing.T, heartbeat time.Duration) *harness {
	t.Helper()
	h := &harness{
		pipe:     &fakePipeline{tasks: map[string]models.Task{}},
		hub:      orchestrator.NewHub(nil),
		projects: project.NewStore(t.TempDir()),
	}
	h.server = New(Config{Pipeline: h.pipe, Hub: h.hub, Projects: h.projects, Heartbeat: heartbeat})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t, 0)
	rec := h.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestGenerateJSON(t *testing.T) {
	h := newHarness(t, 0)
	rec := h.do(t, http.MethodPost, "/api/generate", []byte(`{"topic":"Pythagoras","render":false}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "task-1", body["task_id"])
	assert.Equal(t, "demo-abc123", body["slug"])

	require.Len(t, h.pipe.submitted, 1)
	assert.Equal(t, "Pythagoras", h.pipe.submitted[0].Prompt)
	assert.False(t, h.pipe.submitted[0].Render)
}

func TestGenerateDefaultsToRender(t *testing.T) {
	h := newHarness(t, 0)
	rec := h.do(t, http.MethodPost, "/api/generate/", []byte(`{"prompt":"derivative of x^2"}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, h.pipe.submitted[0].Render)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	h := newHarness(t, 0)
	rec := h.do(t, http.MethodPost, "/api/generate", []byte(`{"prompt":"   "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
	assert.Empty(t, h.pipe.submitted)
}

func TestGenerateConflictWhenProjectBusy(t *testing.T) {
	h := newHarness(t, 0)
	h.pipe.submitErr = project.ErrLocked
	rec := h.do(t, http.MethodPost, "/api/generate", []byte(`{"prompt":"x"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateMultipart(t *testing.T) {
	h := newHarness(t, 0)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("render", "false"))
	fw, err := mw.CreateFormFile("images", "triangle.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	fw, err = mw.CreateFormFile("documents", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("some notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := h.do(t, http.MethodPost, "/api/generate", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	req := h.pipe.submitted[0]
	assert.Empty(t, req.Prompt)
	assert.False(t, req.Render)
	require.Len(t, req.Images, 1)
	assert.Equal(t, "triangle.png", req.Images[0].Name)
	assert.Equal(t, []byte("png-bytes"), req.Images[0].Data)
	require.Len(t, req.Documents, 1)
	assert.Equal(t, "notes.txt", req.Documents[0].Name)
}

func TestSectionOperations(t *testing.T) {
	h := newHarness(t, 0)
	h.pipe.section = orchestrator.SectionResult{Success: false, Error: strings.Repeat("e", 900)}

	rec := h.do(t, http.MethodPost, "/api/generate/demo/section/section_2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "section_2", body["section_id"])
	assert.Len(t, body["error"], 500)

	rec = h.do(t, http.MethodPost, "/api/refiner/demo/refine", []byte(`{"section_id":"section_1","custom_suggestion":" bigger labels "}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"section_1:bigger labels"}, h.pipe.refined)

	rec = h.do(t, http.MethodPost, "/api/refiner/demo/refine", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.pipe.sectionErr = orchestrator.ErrSectionNotFound
	rec = h.do(t, http.MethodPost, "/api/refiner/demo/render/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCritique(t *testing.T) {
	h := newHarness(t, 0)
	h.pipe.critique = models.Critique{HasIssues: true, Issues: []string{"overlap"}, Suggestion: "move label"}

	rec := h.do(t, http.MethodPost, "/api/refiner/demo/critique/section_1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	crit := body["critique"].(map[string]any)
	assert.Equal(t, true, crit["has_issues"])
	assert.Equal(t, "move label", crit["suggestion"])
}

func seedProject(t *testing.T, h *harness) *project.Project {
	t.Helper()
	p, err := h.projects.Create("demo")
	require.NoError(t, err)
	require.NoError(t, p.SaveStoryboard(&models.Storyboard{
		Topic:    "Demo",
		TaskType: models.TaskKnowledge,
		Sections: []models.Section{{ID: "section_1", Title: "Intro"}},
	}))
	_, err = p.WriteScript("section_1", "class Section1Scene(Scene): pass")
	require.NoError(t, err)
	return p
}

func TestProjectEndpoints(t *testing.T) {
	h := newHarness(t, 0)
	p := seedProject(t, h)

	rec := h.do(t, http.MethodGet, "/api/projects", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["projects"], 1)

	rec = h.do(t, http.MethodGet, "/api/projects/demo", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "demo", body["slug"])
	assert.Len(t, body["scripts"], 1)
	assert.Empty(t, body["videos"])

	rec = h.do(t, http.MethodGet, "/api/projects/demo/storyboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Demo", decode(t, rec)["topic"])

	rec = h.do(t, http.MethodGet, "/api/projects/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/projects/demo/storyboard",
		[]byte(`{"topic":"Demo","sections":[{"id":"a"},{"id":"a"}]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/projects/demo/storyboard",
		[]byte(`{"topic":"Edited","sections":[{"id":"section_1","title":"Intro"}]}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	sb, err := p.LoadStoryboard()
	require.NoError(t, err)
	assert.Equal(t, "Edited", sb.Topic)

	rec = h.do(t, http.MethodDelete, "/api/projects/demo", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = os.Stat(p.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestStoryboardRejectsUnsafeSectionIDs(t *testing.T) {
	h := newHarness(t, 0)
	p := seedProject(t, h)

	for _, id := range []string{"../x", "a/b", "*", "sec tion"} {
		body, err := json.Marshal(map[string]any{"topic": "x", "sections": []map[string]string{{"id": id}}})
		require.NoError(t, err)
		rec := h.do(t, http.MethodPut, "/api/projects/demo/storyboard", body, "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
	sb, err := p.LoadStoryboard()
	require.NoError(t, err)
	assert.Equal(t, "Demo", sb.Topic)
}

func TestDeleteRefusesLockedProject(t *testing.T) {
	h := newHarness(t, 0)
	p := seedProject(t, h)

	unlock, err := p.Lock()
	require.NoError(t, err)
	rec := h.do(t, http.MethodDelete, "/api/projects/demo", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	_, err = os.Stat(p.Dir)
	assert.NoError(t, err)
	unlock()

	rec = h.do(t, http.MethodDelete, "/api/projects/demo", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = os.Stat(p.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestStaticServesProjectFiles(t *testing.T) {
	h := newHarness(t, 0)
	p := seedProject(t, h)
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir, project.FinalVideoFile), []byte("mp4"), 0o644))

	rec := h.do(t, http.MethodGet, "/static/demo/"+project.FinalVideoFile, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4", rec.Body.String())
}

func TestTaskEndpoints(t *testing.T) {
	h := newHarness(t, 0)
	h.pipe.tasks["t1"] = models.Task{ID: "t1", Status: models.StatusRunning}

	rec := h.do(t, http.MethodGet, "/api/tasks/t1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode(t, rec)["status"])

	rec = h.do(t, http.MethodGet, "/api/tasks/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/tasks?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/tasks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tasks"], 1)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, 0)
	rec := h.do(t, http.MethodOptions, "/api/generate", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialEvents(t *testing.T, srv *httptest.Server, taskID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/generate/ws/" + taskID
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) orchestrator.Event {
	t.Helper()
	var ev orchestrator.Event
	require.NoError(t, websocket.JSON.Receive(conn, &ev))
	return ev
}

func TestEventStreamDeliversLogsAndPong(t *testing.T) {
	h := newHarness(t, time.Minute)
	srv := httptest.NewServer(h.server)
	defer srv.Close()

	conn := dialEvents(t, srv, "t1")
	assert.Equal(t, orchestrator.EventConnected, receive(t, conn).Type)
	assert.True(t, h.hub.HasSubscribers("t1"))

	h.hub.Log("t1", progress.LevelSuccess, "storyboard ready")
	ev := receive(t, conn)
	assert.Equal(t, orchestrator.EventLog, ev.Type)
	assert.Equal(t, progress.LevelSuccess, ev.Level)
	assert.Equal(t, "storyboard ready", ev.Message)

	require.NoError(t, websocket.Message.Send(conn, "ping"))
	assert.Equal(t, orchestrator.EventPong, receive(t, conn).Type)

	h.hub.Status("t1", models.StatusCompleted, map[string]any{"slug": "demo"})
	ev = receive(t, conn)
	assert.Equal(t, orchestrator.EventStatus, ev.Type)
	assert.Equal(t, models.StatusCompleted, ev.Status)
}

func TestEventStreamHeartbeat(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	srv := httptest.NewServer(h.server)
	defer srv.Close()

	conn := dialEvents(t, srv, "t2")
	assert.Equal(t, orchestrator.EventConnected, receive(t, conn).Type)
	assert.Equal(t, orchestrator.EventHeartbeat, receive(t, conn).Type)
}

func TestEventStreamUnsubscribesOnClose(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	srv := httptest.NewServer(h.server)
	defer srv.Close()

	conn := dialEvents(t, srv, "t3")
	receive(t, conn)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return !h.hub.HasSubscribers("t3") }, 2*time.Second, 20*time.Millisecond)
}
