package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/httputil"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/permissions"
	"github.com/platinummonkey/agora/pkg/rbac"
	"github.com/platinummonkey/agora/pkg/storage"
)

// multipart parts above this size spill to temporary files
const uploadMemory = 8 << 20

// FileHandlers exposes the storage backends over HTTP
type FileHandlers struct {
	registry       *storage.Registry
	maxUploadBytes int64
}

// NewFileHandlers creates file gateway handlers
func NewFileHandlers(registry *storage.Registry, maxUploadBytes int64) *FileHandlers {
	return &FileHandlers{
		registry:       registry,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers the gateway routes on a router mounted at /api/files
func (h *FileHandlers) RegisterRoutes(router *mux.Router, pm *rbac.PermissionMiddleware) {
	view := pm.RequirePermission(permissions.ViewFiles)
	upload := pm.RequirePermission(permissions.UploadFiles)
	remove := pm.RequirePermission(permissions.DeleteFiles)

	router.Handle("/{backend}", view(http.HandlerFunc(h.list))).Methods(http.MethodGet)
	router.Handle("/{backend}", upload(h.limitBody(http.HandlerFunc(h.upload)))).Methods(http.MethodPost)
	router.Handle("/{backend}", remove(http.HandlerFunc(h.delete))).Methods(http.MethodDelete)
	router.Handle("/{backend}/download", view(http.HandlerFunc(h.download))).Methods(http.MethodGet)
	router.Handle("/{backend}/folders", upload(http.HandlerFunc(h.createFolder))).Methods(http.MethodPost)
}

// CreateFolderRequest is the body of POST /api/files/{backend}/folders
type CreateFolderRequest struct {
	Path string `json:"path" validate:"required,max=1024"`
}

// ListResponse is a folder listing
type ListResponse struct {
	Success bool            `json:"success"`
	Backend string          `json:"backend"`
	Path    string          `json:"path"`
	Entries []storage.Entry `json:"entries"`
}

// list handles GET /api/files/{backend}?path=
func (h *FileHandlers) list(w http.ResponseWriter, r *http.Request) {
	name, gw, ok := h.backend(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")

	entries, err := gw.List(r.Context(), p)
	if err != nil {
		h.writeStorageError(w, r, name, err)
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}

	cleaned, _ := storage.CleanPath(p)
	httputil.WriteSuccess(w, ListResponse{
		Success: true,
		Backend: name,
		Path:    "/" + cleaned,
		Entries: entries,
	})
}

// upload handles POST /api/files/{backend}: a multipart "file" stored in the
// folder named by the "path" field
func (h *FileHandlers) upload(w http.ResponseWriter, r *http.Request) {
	name, gw, ok := h.backend(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteTooLarge(w)
			return
		}
		httputil.WriteBadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "file is required")
		return
	}
	defer file.Close()

	filename := path.Base(header.Filename)
	if filename == "." || filename == "/" || filename == ".." {
		httputil.WriteBadRequest(w, "invalid file name")
		return
	}
	dir, err := storage.CleanPath(r.FormValue("path"))
	if err != nil {
		httputil.WriteBadRequest(w, "invalid path")
		return
	}
	target := path.Join(dir, filename)

	if err := gw.Upload(r.Context(), target, file); err != nil {
		h.recordFileEvent(r, audit.EventTypeDataFileUpload, audit.EventStatusFailure, name, target)
		h.writeStorageError(w, r, name, err)
		return
	}

	h.recordFileEvent(r, audit.EventTypeDataFileUpload, audit.EventStatusSuccess, name, target)
	httputil.WriteCreated(w, map[string]interface{}{
		"success": true,
		"path":    target,
	})
}

// download handles GET /api/files/{backend}/download?path=
func (h *FileHandlers) download(w http.ResponseWriter, r *http.Request) {
	name, gw, ok := h.backend(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		httputil.WriteBadRequest(w, "path is required")
		return
	}

	rc, err := gw.Download(r.Context(), p)
	if err != nil {
		h.writeStorageError(w, r, name, err)
		return
	}
	defer rc.Close()

	filename := path.Base(p)
	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithFields(map[string]interface{}{"backend": name, "path": p}).
			Warn("Download interrupted")
	}
}

// delete handles DELETE /api/files/{backend}?path=
func (h *FileHandlers) delete(w http.ResponseWriter, r *http.Request) {
	name, gw, ok := h.backend(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		httputil.WriteBadRequest(w, "path is required")
		return
	}

	if err := gw.Delete(r.Context(), p); err != nil {
		h.recordFileEvent(r, audit.EventTypeDataFileDelete, audit.EventStatusFailure, name, p)
		h.writeStorageError(w, r, name, err)
		return
	}

	h.recordFileEvent(r, audit.EventTypeDataFileDelete, audit.EventStatusSuccess, name, p)
	httputil.WriteOK(w)
}

// createFolder handles POST /api/files/{backend}/folders
func (h *FileHandlers) createFolder(w http.ResponseWriter, r *http.Request) {
	name, gw, ok := h.backend(w, r)
	if !ok {
		return
	}
	var req CreateFolderRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}

	if err := gw.CreateFolder(r.Context(), req.Path); err != nil {
		h.recordFileEvent(r, audit.EventTypeDataFolderCreate, audit.EventStatusFailure, name, req.Path)
		h.writeStorageError(w, r, name, err)
		return
	}

	h.recordFileEvent(r, audit.EventTypeDataFolderCreate, audit.EventStatusSuccess, name, req.Path)
	httputil.WriteCreated(w, httputil.SuccessBody{Success: true})
}

func (h *FileHandlers) limitBody(next http.Handler) http.Handler {
	if h.maxUploadBytes <= 0 {
		return next
	}
	limited := httputil.MaxBytesMiddleware(h.maxUploadBytes)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > h.maxUploadBytes {
			httputil.WriteTooLarge(w)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

func (h *FileHandlers) backend(w http.ResponseWriter, r *http.Request) (string, storage.Gateway, bool) {
	name := mux.Vars(r)["backend"]
	gw, ok := h.registry.Get(name)
	if !ok {
		httputil.WriteNotFoundError(w, fmt.Sprintf("unknown storage backend %q", name))
		return "", nil, false
	}
	return name, gw, true
}

// writeStorageError reports malformed paths as 400 and every backend failure
// as a generic 500. The cause only goes to the log.
func (h *FileHandlers) writeStorageError(w http.ResponseWriter, r *http.Request, backend string, err error) {
	if errors.Is(err, storage.ErrInvalidPath) {
		httputil.WriteBadRequest(w, "invalid path")
		return
	}
	observability.FromContext(r.Context()).WithError(err).
		WithField("backend", backend).
		Error("Storage operation failed")
	httputil.WriteErrorMessage(w, http.StatusInternalServerError, storage.ErrOperationFailed.Error())
}

func (h *FileHandlers) recordFileEvent(r *http.Request, eventType audit.EventType, status audit.EventStatus, backend, p string) {
	event := audit.NewEvent(r, eventType, status)
	event.ResourceType = audit.ResourceTypeFile
	event.ResourceID = backend + ":" + p
	event.Metadata["backend"] = backend
	audit.Emit(r.Context(), event)
}
