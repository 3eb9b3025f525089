package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

const (
	msgNoFile      = "No file was provided."
	msgUnsupported = "Only PDF, Word (.docx), and PowerPoint (.pptx) files are supported."
	msgEmptyName   = "Name cannot be empty."
	msgNoProject   = "Project not found."
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

var mimeFormats = map[string]string{
	"application/pdf": models.FileTypePDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   models.FileTypeDOCX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": models.FileTypePPTX,
}

var extFormats = map[string]string{
	".pdf":  models.FileTypePDF,
	".docx": models.FileTypeDOCX,
	".pptx": models.FileTypePPTX,
}

// UploadInput is a file received from a client.
type UploadInput struct {
	FileName  string
	MimeType  string
	Size      int64
	ProjectID *string
	Body      io.Reader
}

// DocumentService owns the document lifecycle outside of ingestion: intake,
// listing, metadata edits and removal.
type DocumentService struct {
	db        core.DbClient
	storage   core.ObjectClient
	publisher core.EventPublisher
	maxSize   int64
	quota     int64
	now       func() time.Time
	log       *zap.Logger
}

func NewDocumentService(
	db core.DbClient,
	storage core.ObjectClient,
	publisher core.EventPublisher,
	maxSize, quota int64,
	log *zap.Logger,
) *DocumentService {
	return &DocumentService{
		db:        db,
		storage:   storage,
		publisher: publisher,
		maxSize:   maxSize,
		quota:     quota,
		now:       time.Now,
		log:       log.Named("documents"),
	}
}

// validID reports whether id has the canonical UUID form of a row key. Any
// other id would be rejected by Postgres instead of matching nothing.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ownProject normalises a requested project id: blank means none, anything
// else must be a project of the caller.
func ownProject(ctx context.Context, db core.ProjectStore, userID string, projectID *string) (*string, error) {
	if projectID == nil || strings.TrimSpace(*projectID) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*projectID)
	if !validID(id) {
		return nil, core.Validation(msgNoProject)
	}
	ok, err := db.ProjectExists(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("look up project: %w", err)
	}
	if !ok {
		return nil, core.Validation(msgNoProject)
	}
	return &id, nil
}

// DetectFileType resolves the format from the MIME type, then the extension.
// It returns "" for anything unsupported.
func DetectFileType(fileName, mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if ft, ok := mimeFormats[mimeType]; ok {
		return ft
	}
	return extFormats[strings.ToLower(path.Ext(fileName))]
}

// FileTooLarge is the rejection for an upload above limit bytes.
func FileTooLarge(limit int64) error {
	return core.Validation(fmt.Sprintf("File is too large. Maximum size is %s.", humanSize(limit)))
}

// SafeName replaces every character outside [a-zA-Z0-9._-] with an underscore.
func SafeName(fileName string) string {
	return unsafeNameChars.ReplaceAllString(fileName, "_")
}

// Upload validates the file, stores the blob, records a queued document and
// schedules ingestion. The blob is removed again when the row cannot be written.
func (s *DocumentService) Upload(ctx context.Context, userID string, in UploadInput) (*models.Document, error) {
	if in.Body == nil || in.FileName == "" {
		return nil, core.Validation(msgNoFile)
	}
	fileType := DetectFileType(in.FileName, in.MimeType)
	if fileType == "" {
		return nil, core.Validation(msgUnsupported)
	}
	if in.Size > s.maxSize {
		return nil, FileTooLarge(s.maxSize)
	}
	projectID, err := ownProject(ctx, s.db, userID, in.ProjectID)
	if err != nil {
		return nil, err
	}

	exists, err := s.db.DocumentNameExists(ctx, userID, in.FileName)
	if err != nil {
		return nil, fmt.Errorf("check duplicate name: %w", err)
	}
	if exists {
		return nil, core.Validation(fmt.Sprintf(
			"A file named \"%s\" has already been uploaded. Please rename the file or delete the existing one first.", in.FileName))
	}

	if s.quota > 0 {
		used, err := s.db.StorageUsed(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("read storage usage: %w", err)
		}
		if used+in.Size > s.quota {
			return nil, core.Validation(fmt.Sprintf(
				"Storage limit reached. You have used %s of %s.", humanSize(used), humanSize(s.quota)))
		}
	}

	key := fmt.Sprintf("%s/%s_%s", userID, uuid.NewString(), SafeName(in.FileName))
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if _, err := s.storage.UploadFile(ctx, key, in.Body, in.Size, mimeType); err != nil {
		return nil, core.NewError(core.ErrPersist, "Upload failed: "+err.Error(), err)
	}

	doc := &models.Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  in.FileName,
		FilePath:  key,
		FileSize:  in.Size,
		FileType:  fileType,
		MimeType:  mimeType,
		Status:    models.StatusQueued,
		ProjectID: projectID,
		CreatedAt: s.now().UTC(),
	}
	log := s.log.With(zap.String("document_id", doc.ID), zap.String("user_id", userID))

	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if rmErr := s.storage.DeleteFiles(context.WithoutCancel(ctx), key); rmErr != nil {
			log.Warn("remove orphaned blob", zap.String("key", key), zap.Error(rmErr))
		}
		log.Error("create document row", zap.Error(err))
		return nil, core.NewError(core.ErrPersist, "Database error: could not save the document.", err)
	}

	evt := models.UploadEvent{
		DocID:    doc.ID,
		UserID:   userID,
		FilePath: key,
		FileName: doc.FileName,
		FileType: fileType,
	}
	if err := s.publisher.PublishUpload(ctx, evt); err != nil {
		msg := "Could not schedule processing. Please upload the file again."
		if stErr := s.db.UpdateDocumentStatus(context.WithoutCancel(ctx), doc.ID, userID, models.StatusFailed, &msg); stErr != nil {
			log.Error("mark unscheduled document failed", zap.Error(stErr))
		}
		return nil, fmt.Errorf("publish upload event: %w", err)
	}

	log.Info("document queued", zap.String("file_type", fileType), zap.Int64("size", in.Size))
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]models.Document, error) {
	docs, err := s.db.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Get returns the caller's document or a NotFound error.
func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	if !validID(id) {
		return nil, core.NotFound(msgDocNotFound)
	}
	doc, err := s.db.GetDocument(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, core.NotFound(msgDocNotFound)
	}
	return doc, nil
}

func (s *DocumentService) ChunkCount(ctx context.Context, userID, id string) (int, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return 0, err
	}
	return s.db.CountChunks(ctx, id, userID)
}

func (s *DocumentService) StorageUsage(ctx context.Context, userID string) (*models.StorageUsage, error) {
	used, err := s.db.StorageUsed(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.StorageUsage{UsedBytes: used, TotalBytes: s.quota}, nil
}

func (s *DocumentService) Rename(ctx context.Context, userID, id, name string) error {
	if !validID(id) {
		return core.NotFound(msgDocNotFound)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Validation(msgEmptyName)
	}
	return s.db.RenameDocument(ctx, id, userID, name)
}

func (s *DocumentService) SetArchived(ctx context.Context, userID, id string, archived bool) error {
	if !validID(id) {
		return core.NotFound(msgDocNotFound)
	}
	return s.db.SetArchived(ctx, id, userID, archived)
}

func (s *DocumentService) SetStarred(ctx context.Context, userID, id string, starred bool) error {
	if !validID(id) {
		return core.NotFound(msgDocNotFound)
	}
	return s.db.SetStarred(ctx, id, userID, starred)
}

// MoveToProject assigns the document to one of the caller's projects; nil or
// "" detaches it.
func (s *DocumentService) MoveToProject(ctx context.Context, userID, id string, projectID *string) error {
	if !validID(id) {
		return core.NotFound(msgDocNotFound)
	}
	projectID, err := ownProject(ctx, s.db, userID, projectID)
	if err != nil {
		return err
	}
	return s.db.SetProject(ctx, id, userID, projectID)
}

func (s *DocumentService) TouchLastOpened(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return core.NotFound(msgDocNotFound)
	}
	return s.db.TouchLastOpened(ctx, id, userID, s.now().UTC())
}

// Delete removes the row, then the blob. Chunks and messages go with the row.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteDocument(ctx, id, userID); err != nil {
		return err
	}
	if err := s.storage.DeleteFiles(ctx, doc.FilePath); err != nil {
		s.log.Warn("remove blob", zap.String("document_id", id), zap.Error(err))
	}
	return nil
}

// DeleteAll removes every document, blob and project of the user.
func (s *DocumentService) DeleteAll(ctx context.Context, userID string) error {
	docs, err := s.db.ListDocuments(ctx, userID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.FilePath != "" {
			keys = append(keys, d.FilePath)
		}
	}

	if err := s.db.DeleteAllDocuments(ctx, userID); err != nil {
		return err
	}
	if err := s.db.DeleteAllProjects(ctx, userID); err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := s.storage.DeleteFiles(ctx, keys...); err != nil {
			s.log.Warn("remove blobs", zap.Int("count", len(keys)), zap.Error(err))
		}
	}
	s.log.Info("deleted all documents", zap.String("user_id", userID), zap.Int("count", len(docs)))
	return nil
}

// ProjectService manages the folders documents can be grouped into.
type ProjectService struct {
	db core.ProjectStore
}

func NewProjectService(db core.ProjectStore) *ProjectService {
	return &ProjectService{db: db}
}

func (s *ProjectService) List(ctx context.Context, userID string) ([]models.Project, error) {
	projects, err := s.db.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

func (s *ProjectService) Create(ctx context.Context, userID, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.Validation(msgEmptyName)
	}
	p := &models.Project{ID: uuid.NewString(), UserID: userID, Name: name}
	if err := s.db.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete detaches the project's documents and removes the project.
func (s *ProjectService) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return core.NotFound(msgNoProject)
	}
	err := s.db.DeleteProject(ctx, id, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFound(msgNoProject)
	}
	return err
}
