package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/services"
)

// multipartOverhead is the slack allowed above the file limit for form fields.
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	docs    *services.DocumentService
	suggest *services.SuggestService
	maxSize int64
	log     *zap.Logger
}

func NewDocumentHandler(docs *services.DocumentService, suggest *services.SuggestService, maxSize int64, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, suggest: suggest, maxSize: maxSize, log: log.Named("document-handler")}
}

// UploadDocument accepts a multipart "file" field and queues it for ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxSize + multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondErr(w, h.log, services.FileTooLarge(h.maxSize))
			return
		}
		RespondError(w, http.StatusBadRequest, "No file was provided.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "No file was provided.")
		return
	}
	defer file.Close()

	in := services.UploadInput{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Body:     file,
	}
	if pid := r.FormValue("project_id"); pid != "" {
		in.ProjectID = &pid
	}

	doc, err := h.docs.Upload(r.Context(), userID, in)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	docs, err := h.docs.List(r.Context(), userID)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	doc, err := h.docs.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, doc)
}

// updateDocumentRequest carries the fields a PATCH may change. Absent fields
// are left untouched; project_id null detaches the document.
type updateDocumentRequest struct {
	FileName   *string        `json:"file_name"`
	IsStarred  *bool          `json:"is_starred"`
	IsArchived *bool          `json:"is_archived"`
	ProjectID  optionalString `json:"project_id"`
}

// optionalString tells an absent field apart from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req updateDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	var err error
	if req.FileName != nil {
		err = h.docs.Rename(ctx, userID, id, *req.FileName)
	}
	if err == nil && req.IsStarred != nil {
		err = h.docs.SetStarred(ctx, userID, id, *req.IsStarred)
	}
	if err == nil && req.IsArchived != nil {
		err = h.docs.SetArchived(ctx, userID, id, *req.IsArchived)
	}
	if err == nil && req.ProjectID.Set {
		err = h.docs.MoveToProject(ctx, userID, id, req.ProjectID.Value)
	}
	if err != nil {
		respondErr(w, h.log, err)
		return
	}

	doc, err := h.docs.Get(ctx, userID, id)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) OpenDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.docs.TouchLastOpened(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondErr(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) ChunkCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := h.docs.ChunkCount(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.docs.Delete(r.Context(), userID, id); err != nil {
		respondErr(w, h.log, err)
		return
	}
	h.suggest.Forget(userID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) DeleteAllDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.docs.DeleteAll(r.Context(), userID); err != nil {
		respondErr(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) StorageUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	usage, err := h.docs.StorageUsage(r.Context(), userID)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, usage)
}
