package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/core/llm"
	"github.com/markdave123-py/documind/internal/models"
)

// memDB is an in-memory core.DbClient scoped by owner like the real store.
// Row ids are UUIDs like the ones Postgres hands out.
const (
	docRivers = "0b7e3c52-9f4a-4c1e-8d2b-5a6f7e8d9c01"
	docLakes  = "0b7e3c52-9f4a-4c1e-8d2b-5a6f7e8d9c02"
	docEmpty  = "0b7e3c52-9f4a-4c1e-8d2b-5a6f7e8d9c03"
	docGone   = "0b7e3c52-9f4a-4c1e-8d2b-5a6f7e8d9c04"
	docTaken  = "0b7e3c52-9f4a-4c1e-8d2b-5a6f7e8d9c05"
)

type memDB struct {
	mu       sync.Mutex
	docs     map[string]*models.Document
	chunks   map[string][]models.DocumentChunk
	messages []models.ChatMessage
	projects map[string]*models.Project
	runs     map[string]*models.IngestionRun

	hybrid    []models.ScoredChunk
	hybridErr error
	createErr error
	insertErr error
}

var _ core.DbClient = (*memDB)(nil)

func newMemDB() *memDB {
	return &memDB{
		docs:     map[string]*models.Document{},
		chunks:   map[string][]models.DocumentChunk{},
		projects: map[string]*models.Project{},
		runs:     map[string]*models.IngestionRun{},
	}
}

func (m *memDB) addDoc(d models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = &d
}

func (m *memDB) addChunks(docID, userID string, contents ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		m.chunks[docID] = append(m.chunks[docID], models.DocumentChunk{
			DocumentID: docID, UserID: userID, ChunkIndex: len(m.chunks[docID]), Content: c,
		})
	}
}

func (m *memDB) owned(id, userID string) (*models.Document, error) {
	d, ok := m.docs[id]
	if !ok || d.UserID != userID {
		return nil, core.NotFound("Document not found or access denied.")
	}
	return d, nil
}

func (m *memDB) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memDB) GetDocument(_ context.Context, id, userID string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.owned(id, userID)
	if err != nil {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memDB) ListDocuments(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDB) DocumentNameExists(_ context.Context, userID, fileName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.UserID == userID && d.FileName == fileName {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDB) UpdateDocumentStatus(_ context.Context, id, userID, status string, message *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.owned(id, userID)
	if err != nil {
		return err
	}
	if !models.CanTransition(d.Status, status) {
		return errors.New("illegal transition")
	}
	d.Status, d.StatusMessage = status, message
	return nil
}

func (m *memDB) update(id, userID string, fn func(d *models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.owned(id, userID)
	if err != nil {
		return err
	}
	fn(d)
	return nil
}

func (m *memDB) SetPageCount(_ context.Context, id, userID string, n int) error {
	return m.update(id, userID, func(d *models.Document) { d.PageCount = &n })
}

func (m *memDB) SetSummary(_ context.Context, id, userID, summary string) error {
	return m.update(id, userID, func(d *models.Document) { d.Summary = &summary })
}

func (m *memDB) RenameDocument(_ context.Context, id, userID, name string) error {
	return m.update(id, userID, func(d *models.Document) { d.FileName = name })
}

func (m *memDB) SetArchived(_ context.Context, id, userID string, v bool) error {
	return m.update(id, userID, func(d *models.Document) { d.IsArchived = v })
}

func (m *memDB) SetStarred(_ context.Context, id, userID string, v bool) error {
	return m.update(id, userID, func(d *models.Document) { d.IsStarred = v })
}

func (m *memDB) SetProject(_ context.Context, id, userID string, projectID *string) error {
	return m.update(id, userID, func(d *models.Document) { d.ProjectID = projectID })
}

func (m *memDB) TouchLastOpened(_ context.Context, id, userID string, at time.Time) error {
	return m.update(id, userID, func(d *models.Document) { d.LastOpenedAt = &at })
}

func (m *memDB) DeleteDocument(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.owned(id, userID); err != nil {
		return err
	}
	delete(m.docs, id)
	delete(m.chunks, id)
	return nil
}

func (m *memDB) DeleteAllDocuments(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.docs {
		if d.UserID == userID {
			delete(m.docs, id)
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *memDB) StorageUsed(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var used int64
	for _, d := range m.docs {
		if d.UserID == userID {
			used += d.FileSize
		}
	}
	return used, nil
}

func (m *memDB) DocumentNames(_ context.Context, userID string, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if d, ok := m.docs[id]; ok && d.UserID == userID {
			out[id] = d.FileName
		}
	}
	return out, nil
}

func (m *memDB) UpsertChunks(_ context.Context, chunks []models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.DocumentID] = append(m.chunks[c.DocumentID], c)
	}
	return nil
}

func (m *memDB) ListChunks(_ context.Context, documentID, userID string, limit int) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentChunk
	for _, c := range m.chunks[documentID] {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memDB) CountChunks(ctx context.Context, documentID, userID string) (int, error) {
	c, err := m.ListChunks(ctx, documentID, userID, 0)
	return len(c), err
}

func (m *memDB) HybridSearch(context.Context, string, string, string, int, float64, float64) ([]models.ScoredChunk, error) {
	return m.hybrid, m.hybridErr
}

func (m *memDB) SemanticSearch(context.Context, string, string, []float32, int) ([]models.ScoredChunk, error) {
	return nil, nil
}

func (m *memDB) SetChunkEmbeddings(context.Context, string, string, map[int][]float32) error {
	return nil
}

func (m *memDB) InsertChatMessages(_ context.Context, msgs []models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *memDB) RecentUserMessageExists(_ context.Context, documentID, userID, content string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.DocumentID == documentID && msg.UserID == userID && msg.Role == models.RoleUser &&
			msg.Content == content && !msg.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDB) ListChatMessages(_ context.Context, documentID, userID string) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.DocumentID == documentID && msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memDB) ListUserChatMessages(_ context.Context, userID string) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memDB) DeleteChatMessages(_ context.Context, documentID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.DocumentID != documentID || msg.UserID != userID {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memDB) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memDB) ListProjects(_ context.Context, userID string) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Project
	for _, p := range m.projects {
		if p.UserID != userID {
			continue
		}
		cp := *p
		for _, d := range m.docs {
			if d.ProjectID != nil && *d.ProjectID == p.ID {
				cp.DocCount++
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *memDB) ProjectExists(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	return ok && p.UserID == userID, nil
}

func (m *memDB) DeleteProject(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return core.NotFound("Project not found.")
	}
	for _, d := range m.docs {
		if d.ProjectID != nil && *d.ProjectID == id {
			d.ProjectID = nil
		}
	}
	delete(m.projects, id)
	return nil
}

func (m *memDB) DeleteAllProjects(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.projects {
		if p.UserID == userID {
			delete(m.projects, id)
		}
	}
	return nil
}

func (m *memDB) SaveIngestionRun(_ context.Context, run *models.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.DocumentID] = &cp
	return nil
}

func (m *memDB) GetIngestionRun(_ context.Context, documentID string) (*models.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[documentID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memDB) ListUnfinishedRuns(context.Context) ([]models.IngestionRun, error) { return nil, nil }

func (m *memDB) Close() error { return nil }

// memObjects is an in-memory blob store.
type memObjects struct {
	mu        sync.Mutex
	files     map[string][]byte
	uploadErr error
}

func newMemObjects() *memObjects { return &memObjects{files: map[string][]byte{}} }

func (o *memObjects) UploadFile(_ context.Context, key string, data io.Reader, _ int64, _ string) (string, error) {
	if o.uploadErr != nil {
		return "", o.uploadErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[key] = b
	return key, nil
}

func (o *memObjects) GetFile(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.files[key]
	if !ok {
		return nil, core.NotFound("missing")
	}
	return bytes.Clone(b), nil
}

func (o *memObjects) DeleteFiles(_ context.Context, keys ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range keys {
		delete(o.files, k)
	}
	return nil
}

type recordingPublisher struct {
	events []models.UploadEvent
	err    error
}

func (p *recordingPublisher) PublishUpload(_ context.Context, evt models.UploadEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

// scriptedLLM answers per model from a script; a missing model succeeds.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	calls    []string
	systems  []string
	messages [][]core.Message
	opts     []core.GenerateOptions
}

func (l *scriptedLLM) record(model, system string, msgs []core.Message, opts core.GenerateOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, model)
	l.systems = append(l.systems, system)
	l.messages = append(l.messages, msgs)
	l.opts = append(l.opts, opts)
	if err := l.errs[model]; err != nil {
		return "", err
	}
	return l.replies[model], nil
}

func (l *scriptedLLM) Generate(_ context.Context, model, system, prompt string, opts core.GenerateOptions) (string, error) {
	return l.record(model, system, []core.Message{{Role: models.RoleUser, Content: prompt}}, opts)
}

func (l *scriptedLLM) Chat(_ context.Context, model, system string, msgs []core.Message, opts core.GenerateOptions) (string, error) {
	return l.record(model, system, msgs, opts)
}

func joinContents(msgs []core.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Content
	}
	return strings.Join(parts, "|")
}

func quotaErr(model string) error {
	return llm.NewModelError(model, llm.KindQuota, errors.New("quota "+model))
}

func newTestChain() *llm.ModelChain {
	return llm.NewModelChain(testModels, 0, zap.NewNop())
}
