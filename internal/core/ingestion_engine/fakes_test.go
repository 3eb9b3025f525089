package ingestion_engine

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

type fakeStore struct {
	mu         sync.Mutex
	docs       map[string]*models.Document
	chunks     map[string]map[int]models.DocumentChunk
	vectors    map[string]map[int][]float32
	runs       map[string]models.IngestionRun
	statuses   []string
	upserts    int
	failUpsert map[int]error // upsert call number -> error
}

func newFakeStore(docs ...*models.Document) *fakeStore {
	s := &fakeStore{
		docs:       map[string]*models.Document{},
		chunks:     map[string]map[int]models.DocumentChunk{},
		vectors:    map[string]map[int][]float32{},
		runs:       map[string]models.IngestionRun{},
		failUpsert: map[int]error{},
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeStore) UpdateDocumentStatus(_ context.Context, id, userID, status string, message *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.UserID != userID || !models.CanTransition(d.Status, status) {
		return core.NotFound("document " + id + " cannot move to " + status)
	}
	d.Status = status
	d.StatusMessage = message
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) SetPageCount(_ context.Context, id, _ string, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id].PageCount = &pageCount
	return nil
}

func (s *fakeStore) SetSummary(_ context.Context, id, _ string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id].Summary = &summary
	return nil
}

func (s *fakeStore) UpsertChunks(_ context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if err := s.failUpsert[s.upserts]; err != nil {
		return err
	}
	for _, c := range chunks {
		if s.chunks[c.DocumentID] == nil {
			s.chunks[c.DocumentID] = map[int]models.DocumentChunk{}
		}
		s.chunks[c.DocumentID][c.ChunkIndex] = c
	}
	return nil
}

func (s *fakeStore) SetChunkEmbeddings(_ context.Context, documentID, _ string, vectors map[int][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors[documentID] == nil {
		s.vectors[documentID] = map[int][]float32{}
	}
	for k, v := range vectors {
		s.vectors[documentID][k] = v
	}
	return nil
}

func (s *fakeStore) SaveIngestionRun(_ context.Context, run *models.IngestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	cp.CompletedSteps = append([]string(nil), run.CompletedSteps...)
	s.runs[run.DocumentID] = cp
	return nil
}

func (s *fakeStore) GetIngestionRun(_ context.Context, documentID string) (*models.IngestionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[documentID]
	if !ok {
		return nil, nil
	}
	run.CompletedSteps = append([]string(nil), run.CompletedSteps...)
	return &run, nil
}

func (s *fakeStore) ListUnfinishedRuns(context.Context) ([]models.IngestionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IngestionRun
	for _, r := range s.runs {
		if r.State == models.RunPending || r.State == models.RunRunning {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) doc(id string) models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.docs[id]
}

func (s *fakeStore) run(id string) models.IngestionRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// storedChunks returns a document's chunks ordered by index.
func (s *fakeStore) storedChunks(docID string) []models.DocumentChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DocumentChunk, 0, len(s.chunks[docID]))
	for _, c := range s.chunks[docID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

type fakeObjects struct {
	mu    sync.Mutex
	files map[string][]byte
	errs  []error // returned by successive GetFile calls before serving files
	calls int
}

func (o *fakeObjects) UploadFile(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	return key, nil
}

func (o *fakeObjects) GetFile(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if len(o.errs) > 0 {
		err := o.errs[0]
		o.errs = o.errs[1:]
		return nil, err
	}
	data, ok := o.files[key]
	if !ok {
		return nil, core.NewError(core.ErrNotFound, "object not found", nil)
	}
	return data, nil
}

func (o *fakeObjects) DeleteFiles(context.Context, ...string) error { return nil }

func (o *fakeObjects) getCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type fakeSummarizer struct {
	summary string
	err     error
	inputs  [][]string
}

func (f *fakeSummarizer) Summarize(_ context.Context, chunks []string) (string, error) {
	f.inputs = append(f.inputs, chunks)
	return f.summary, f.err
}

type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if len(texts) == 0 {
		return nil, errors.New("no texts")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}
