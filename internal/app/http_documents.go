package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"odocs/api/internal/export"
	"odocs/api/internal/search"
	"odocs/api/internal/store"
)

func (s *HTTPServer) documentRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleCreateDocument)
		r.Get("/trash", s.handleListTrash)

		r.Route("/{documentID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Patch("/", s.handleUpdateDocument)
			r.Delete("/", s.handleSoftDeleteDocument)
			r.Post("/restore", s.handleRestoreDocument)
			r.Delete("/permanent", s.handlePermanentDelete)

			r.Get("/revisions", s.handleListRevisions)
			r.Post("/revisions", s.handleAppendRevision)
			r.Get("/revisions/latest", s.handleLatestRevision)
			r.Get("/revisions/{version}", s.handleGetRevision)

			r.Post("/assets/upload", s.handleAssetUpload)
			r.Post("/assets/drafts", s.handleDraftUpload)
			r.Post("/assets/resolve", s.handleResolveAssets)
			r.Post("/assets/clone", s.handleCloneAsset)
			r.Get("/assets/{assetID}", s.handleAssetView)

			r.Get("/tags", s.handleListTags)
			r.Post("/tags", s.handleAddTag)
			r.Delete("/tags/{name}", s.handleRemoveTag)

			r.Get("/share-links", s.handleListShareLinks)
			r.Post("/share-links", s.handleCreateShareLink)

			r.Get("/export", s.handleExport)
		})
	})
}

func documentPayload(doc *store.Document) map[string]any {
	if doc == nil {
		return nil
	}
	return map[string]any{
		"id":                doc.ID,
		"workspaceId":       doc.WorkspaceID,
		"folderId":          doc.FolderID,
		"ownerMembershipId": doc.OwnerMembershipID,
		"title":             doc.Title,
		"slug":              doc.Slug,
		"documentNumber":    doc.DocumentNumber,
		"status":            doc.Status,
		"visibility":        doc.Visibility,
		"summary":           doc.Summary,
		"contentSize":       doc.ContentSize,
		"viewCount":         doc.ViewCount,
		"sortOrder":         doc.SortOrder,
		"deletedAt":         doc.DeletedAt,
		"createdAt":         doc.CreatedAt,
		"updatedAt":         doc.UpdatedAt,
	}
}

func documentsPayload(docs []store.Document) []map[string]any {
	items := make([]map[string]any, 0, len(docs))
	for i := range docs {
		items = append(items, documentPayload(&docs[i]))
	}
	return items
}

// revisionPayload returns nil for a nil revision so it encodes as null.
func revisionPayload(rev *store.DocumentRevision) map[string]any {
	if rev == nil {
		return nil
	}
	payload := map[string]any{
		"id":                    rev.ID,
		"documentId":            rev.DocumentID,
		"version":               rev.Version,
		"contentSize":           rev.ContentSize,
		"summary":               rev.Summary,
		"createdByMembershipId": rev.CreatedByMembershipID,
		"createdAt":             rev.CreatedAt,
	}
	if len(rev.Content) > 0 {
		payload["content"] = rev.Content
	}
	return payload
}

func tagPayload(tag store.DocumentTag) map[string]any {
	return map[string]any{
		"id":         tag.ID,
		"documentId": tag.DocumentID,
		"name":       tag.Name,
		"createdAt":  tag.CreatedAt,
	}
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	var folderID *string
	if raw := strings.TrimSpace(r.URL.Query().Get("folderId")); raw != "" {
		folderID = &raw
	}
	docs, err := s.service.ListDocuments(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), folderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documentsPayload(docs)})
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var body CreateDocumentInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	doc, rev, err := s.service.CreateDocument(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"document": documentPayload(doc),
		"revision": revisionPayload(rev),
	})
}

func (s *HTTPServer) handleListTrash(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.ListTrashedDocuments(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documentsPayload(docs)})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, rev, err := s.service.GetDocument(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": documentPayload(doc),
		"revision": revisionPayload(rev),
	})
}

func (s *HTTPServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body UpdateDocumentInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	doc, err := s.service.UpdateDocument(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": documentPayload(doc)})
}

func (s *HTTPServer) handleSoftDeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.SoftDeleteDocument(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": documentPayload(doc)})
}

func (s *HTTPServer) handleRestoreDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.RestoreDocument(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": documentPayload(doc)})
}

func (s *HTTPServer) handlePermanentDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.PermanentDeleteDocument(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := s.service.ListRevisions(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(revs))
	for i := range revs {
		items = append(items, revisionPayload(&revs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": items})
}

func (s *HTTPServer) handleAppendRevision(w http.ResponseWriter, r *http.Request) {
	var body AppendRevisionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	rev, err := s.service.AppendRevision(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"revision": revisionPayload(rev)})
}

func (s *HTTPServer) handleLatestRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.service.GetLatestRevision(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revision": revisionPayload(rev)})
}

func (s *HTTPServer) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
		return
	}
	rev, err := s.service.GetRevision(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revision": revisionPayload(rev)})
}

func (s *HTTPServer) handleAssetUpload(w http.ResponseWriter, r *http.Request) {
	var body AssetUploadInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ticket, err := s.service.CreateAssetUploadURL(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *HTTPServer) handleDraftUpload(w http.ResponseWriter, r *http.Request) {
	var body AssetUploadInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ticket, err := s.service.CreateDraftUploadURL(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *HTTPServer) handleResolveAssets(w http.ResponseWriter, r *http.Request) {
	var body ResolveAssetsInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	urls, err := s.service.ResolveAssetURLs(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"urls": urls})
}

func (s *HTTPServer) handleCloneAsset(w http.ResponseWriter, r *http.Request) {
	var body CloneAssetInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ref, err := s.service.CloneAsset(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ref": ref})
}

// handleAssetView answers with the signed URL, or redirects to it with
// ?redirect=1.
func (s *HTTPServer) handleAssetView(w http.ResponseWriter, r *http.Request) {
	url, err := s.service.GetAssetViewURL(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), chi.URLParam(r, "assetID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if redirect := r.URL.Query().Get("redirect"); redirect == "1" || redirect == "true" {
		w.Header().Del("Content-Type")
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *HTTPServer) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.ListTags(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		items = append(items, tagPayload(tag))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": items})
}

func (s *HTTPServer) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var body TagInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	tag, err := s.service.AddTag(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tag": tagPayload(*tag)})
}

func (s *HTTPServer) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveTag(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, ok := export.ParseFormat(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html or pdf", nil)
		return
	}
	result, err := s.service.ExportDocument(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), format)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit == 0 || limit > 100 {
		limit = 20
	}
	response, err := s.service.Search(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), search.Query{
		Text:   r.URL.Query().Get("q"),
		Limit:  limit,
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
