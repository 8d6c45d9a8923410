package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/rag"
	"rag-chatbot-backend/internal/session"
	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var vocabulary = []string{"paris", "france", "tokyo", "japan"}

type wordEmbedder struct{}

func (wordEmbedder) ModelName() string { return "words" }

func (e wordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.EmbedQuery(ctx, t)
	}
	return out, nil
}

func (wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, len(vocabulary)+1)
	v[len(vocabulary)] = 0.01
	lower := strings.ToLower(text)
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(lower, w))
	}
	return v, nil
}

type scriptedCompleter struct {
	reply string
	err   error
}

func (s scriptedCompleter) Complete(context.Context, string, ai.Prompt, ai.CompletionOptions) (string, error) {
	return s.reply, s.err
}

// stalledCompleter never answers on its own; it returns once the request
// context gives up.
type stalledCompleter struct{}

func (stalledCompleter) Complete(ctx context.Context, _ string, _ ai.Prompt, _ ai.CompletionOptions) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeScanner struct{ paths []string }

func (f fakeScanner) Scan(string) ([]string, error) { return f.paths, nil }

type fakeQueue struct {
	err   error
	tasks []*asynq.Task
}

func (f *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-42", Type: task.Type()}, nil
}

type fakeTranscripts struct{ items []models.Transcript }

func (f fakeTranscripts) Recent(_ context.Context, sessionID string, _ int64) ([]models.Transcript, error) {
	var out []models.Transcript
	for _, t := range f.items {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fixture struct {
	router *gin.Engine
	store  vectorindex.Store
	queue  *fakeQueue
}

func newFixture(t *testing.T, completer ai.Completer, opts ...func(*Dependencies)) *fixture {
	t.Helper()
	store := vectorindex.NewFlatIndex(vectorindex.Options{Embedder: wordEmbedder{}})
	require.NoError(t, store.Build(context.Background(), []models.Chunk{
		{Content: "Paris is the capital of France.", Metadata: map[string]string{models.MetaSource: "/data/A.pdf"}},
		{Content: "Tokyo is the capital of Japan.", Metadata: map[string]string{models.MetaSource: "/data/B.pdf"}},
	}))

	retriever, err := rag.NewRetriever(store, wordEmbedder{}, rag.WithK(2))
	require.NoError(t, err)

	q := &fakeQueue{}
	d := Dependencies{
		Config: &config.Config{
			SupportedModels: []string{"m1"},
			DataDir:         "/data",
			VectorBackend:   vectorindex.BackendFlat,
			AdminJWTSecret:  "secret",
		},
		Registry: rag.NewRegistry(retriever, completer, []string{"m1"}),
		Sessions: session.NewManager(session.NewMemoryStore(), 20, time.Hour),
		Store:    store,
		Scanner:  fakeScanner{paths: []string{"/data/A.pdf", "/data/C.pdf"}},
		Queue:    q,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return &fixture{router: NewRouter(d), store: store, queue: q}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) models.ChatResponse {
	t.Helper()
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := utils.GenerateJWT("ops", utils.RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)
	return token
}

func TestHealth(t *testing.T) {
	f := newFixture(t, scriptedCompleter{})
	w := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","rag_initialized":true}`, w.Body.String())
}

func TestChatAnswersWithSource(t *testing.T) {
	f := newFixture(t, scriptedCompleter{reply: "Answer: Paris."})
	w := f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "What is the capital of France?", "model": "m1"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeChat(t, w)
	assert.Equal(t, "Paris.", resp.Reply)
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "/data/A.pdf", resp.Sources[0].URL)
	assert.Equal(t, "A", resp.Sources[0].Title)
}

func TestChatKeepsSession(t *testing.T) {
	f := newFixture(t, scriptedCompleter{reply: "Answer: Paris."})
	first := decodeChat(t, f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "Capital of France?", "model": "m1"}, ""))
	second := decodeChat(t, f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "And again?", "model": "m1", "session_id": first.SessionID}, ""))
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestChatRejectsBadRequests(t *testing.T) {
	f := newFixture(t, scriptedCompleter{reply: "Answer: x"})

	w := f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "   ", "model": "m1"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "hi", "model": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "hi", "model": "m1", "session_id": strings.Repeat("x", 200)}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatGenerationFailure(t *testing.T) {
	f := newFixture(t, scriptedCompleter{err: errors.New("upstream exploded with secrets")})
	w := f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "Capital of France?", "model": "m1"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeChat(t, w)
	assert.Equal(t, rag.UnavailableMessage, resp.Reply)
	assert.Empty(t, resp.Sources)
	assert.NotContains(t, w.Body.String(), "secrets")
}

func TestChatAnswerTimeoutReturnsUnavailableReply(t *testing.T) {
	f := newFixture(t, stalledCompleter{}, func(d *Dependencies) {
		d.AnswerTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	w := f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "Capital of France?", "model": "m1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, time.Since(start), 5*time.Second)

	resp := decodeChat(t, w)
	assert.Equal(t, rag.UnavailableMessage, resp.Reply)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.SessionID)
}

func TestPresentSourcesUsesPDFLinks(t *testing.T) {
	h := &ChatHandler{links: func(path string) ([]string, error) {
		if path == "/data/A.pdf" {
			return []string{"https://example.com/a", "https://docs.example.org/b"}, nil
		}
		return nil, nil
	}}

	got := h.presentSources([]models.Source{{URL: "/data/A.pdf", Title: "A"}})
	assert.Equal(t, []models.Source{
		{URL: "https://example.com/a", Title: "example.com"},
		{URL: "https://docs.example.org/b", Title: "docs.example.org"},
	}, got)

	// no links keeps the file
	got = h.presentSources([]models.Source{{URL: "/data/B.pdf", Title: "B"}})
	assert.Equal(t, "/data/B.pdf", got[0].URL)

	// remote and non-pdf sources are untouched
	got = h.presentSources([]models.Source{{URL: "https://site/x.pdf"}})
	assert.Equal(t, "https://site/x.pdf", got[0].URL)
	assert.Empty(t, h.presentSources(nil))
}

func TestAdminIngest(t *testing.T) {
	f := newFixture(t, scriptedCompleter{})

	w := f.do(t, http.MethodPost, "/api/admin/ingest", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/admin/ingest", nil, adminToken(t))
	require.Equal(t, http.StatusAccepted, w.Code)
	var body struct {
		TaskID string   `json:"task_id"`
		Files  []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "task-42", body.TaskID)
	assert.Equal(t, []string{"/data/C.pdf"}, body.Files)
	require.Len(t, f.queue.tasks, 1)

	f.queue.err = asynq.ErrTaskIDConflict
	w = f.do(t, http.MethodPost, "/api/admin/ingest", nil, adminToken(t))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminIngestWithoutQueue(t *testing.T) {
	f := newFixture(t, scriptedCompleter{}, func(d *Dependencies) { d.Queue = nil })
	w := f.do(t, http.MethodPost, "/api/admin/ingest", nil, adminToken(t))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminIndexAndTranscripts(t *testing.T) {
	f := newFixture(t, scriptedCompleter{}, func(d *Dependencies) {
		d.Transcripts = fakeTranscripts{items: []models.Transcript{{SessionID: "s1", Question: "q"}}}
	})

	w := f.do(t, http.MethodGet, "/api/admin/index", nil, adminToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"backend":"flat","size":2,"dimensions":5}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/admin/sessions/s1/transcripts", nil, adminToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"question":"q"`)

	w = f.do(t, http.MethodGet, "/api/admin/sessions/s1/transcripts?format=xlsx", nil, adminToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "transcripts.xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = f.do(t, http.MethodGet, "/api/admin/sessions/s1/transcripts?limit=0", nil, adminToken(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
