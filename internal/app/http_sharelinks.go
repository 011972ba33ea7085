package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"odocs/api/internal/session"
	"odocs/api/internal/store"
)

const shareLinkPasswordHeader = "X-Share-Password"

func (s *HTTPServer) shareLinkRoutes(r chi.Router) {
	r.Patch("/share-links/{linkID}", s.handleUpdateShareLink)
	r.Delete("/share-links/{linkID}", s.handleRevokeShareLink)
	r.Delete("/share-links/{linkID}/sessions", s.handleRevokeGuestSessions)
}

// shareLinkPayload never exposes the password hash.
func shareLinkPayload(link *store.ShareLink) map[string]any {
	if link == nil {
		return nil
	}
	return map[string]any{
		"id":                    link.ID,
		"documentId":            link.DocumentID,
		"workspaceId":           link.WorkspaceID,
		"token":                 link.Token,
		"accessLevel":           link.AccessLevel,
		"accessType":            link.AccessType,
		"hasPassword":           link.PasswordHash != nil,
		"expiresAt":             link.ExpiresAt,
		"revokedAt":             link.RevokedAt,
		"allowExternalEdit":     link.AllowExternalEdit,
		"createdByMembershipId": link.CreatedByMembershipID,
		"createdAt":             link.CreatedAt,
		"updatedAt":             link.UpdatedAt,
	}
}

func guestPayload(guest *session.GuestSession) map[string]any {
	return map[string]any{
		"sessionId":      guest.SessionID,
		"shareLinkId":    guest.ShareLinkID,
		"collaboratorId": guest.CollaboratorID,
		"documentId":     guest.DocumentID,
		"workspaceId":    guest.WorkspaceID,
		"accessLevel":    guest.AccessLevel,
		"expiresAt":      guest.ExpiresAt,
	}
}

func (s *HTTPServer) handleListShareLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.service.ListShareLinks(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(links))
	for i := range links {
		items = append(items, shareLinkPayload(&links[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"shareLinks": items})
}

func (s *HTTPServer) handleCreateShareLink(w http.ResponseWriter, r *http.Request) {
	var body CreateShareLinkInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	link, err := s.service.CreateShareLink(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shareLink": shareLinkPayload(link)})
}

func (s *HTTPServer) handleUpdateShareLink(w http.ResponseWriter, r *http.Request) {
	var body UpdateShareLinkInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	link, err := s.service.UpdateShareLink(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "linkID"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shareLink": shareLinkPayload(link)})
}

func (s *HTTPServer) handleRevokeShareLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.service.RevokeShareLink(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "linkID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shareLink": shareLinkPayload(link)})
}

func (s *HTTPServer) handleRevokeGuestSessions(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.RevokeGuestSessions(r.Context(), actorFrom(r), chi.URLParam(r, "workspaceID"), chi.URLParam(r, "linkID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": count})
}

func (s *HTTPServer) handleResolveShareLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	resolved, err := s.service.ResolveShareLink(r.Context(), chi.URLParam(r, "token"), body.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":                 resolved.Link.Token,
		"document":              documentPayload(resolved.Document),
		"revision":              revisionPayload(resolved.Revision),
		"accessLevel":           resolved.Link.AccessLevel,
		"allowExternalEdit":     resolved.Link.AllowExternalEdit,
		"createdByMembershipId": resolved.Link.CreatedByMembershipID,
	})
}

func (s *HTTPServer) handleAuthorDocuments(w http.ResponseWriter, r *http.Request) {
	password := strings.TrimSpace(r.Header.Get(shareLinkPasswordHeader))
	entries, err := s.service.AuthorPublicDocuments(r.Context(), chi.URLParam(r, "token"), password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		link := entry.ShareLink
		items = append(items, map[string]any{
			"document":          documentPayload(entry.Document),
			"shareLink":         shareLinkPayload(&link),
			"revision":          revisionPayload(entry.Revision),
			"isCurrentDocument": entry.IsCurrentDocument,
			"authorName":        entry.AuthorName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": items})
}

func (s *HTTPServer) handleAcceptGuest(w http.ResponseWriter, r *http.Request) {
	var body AcceptGuestInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	grant, err := s.service.AcceptGuest(r.Context(), chi.URLParam(r, "token"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (s *HTTPServer) handleGuestSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	guest, err := s.service.AuthenticateGuest(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": guestPayload(guest)})
}
