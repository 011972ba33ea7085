package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"odocs/api/internal/auth"
)

func newTestHandler(t *testing.T) (*testEnv, http.Handler) {
	t.Helper()
	env := newTestEnv(t)
	return env, NewHTTPServer(env.svc, "*").Handler()
}

func bearerFor(t *testing.T, accountID, name string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), accountID, name, "jti-"+accountID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func serve(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var payload map[string]any
	if strings.Contains(rr.Header().Get("Content-Type"), "application/json") && rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, payload
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestHandler(t)
	rr, payload := serve(t, handler, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if payload["ok"] != true {
		t.Errorf("expected ok=true, got %v", payload["ok"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	env, handler := newTestHandler(t)

	rr, payload := serve(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK || payload["status"] != "ready" {
		t.Fatalf("expected ready, got %d %v", rr.Code, payload)
	}

	env.store.pingFn = func(context.Context) error { return errors.New("connection refused") }
	rr, payload = serve(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if payload["status"] != "not_ready" {
		t.Errorf("expected not_ready, got %v", payload["status"])
	}
	checks, _ := payload["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if database["error"] != "connection refused" {
		t.Errorf("expected database error, got %v", database)
	}
}

func TestWorkspaceRoutesRequireBearer(t *testing.T) {
	_, handler := newTestHandler(t)
	headers := map[string][]string{
		"missing": nil,
		"garbage": {"Authorization", "Bearer not-a-jwt"},
		"basic":   {"Authorization", "Basic dXNlcjpwYXNz"},
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			var extra map[string]string
			if header != nil {
				extra = map[string]string{header[0]: header[1]}
			}
			rr, payload := serve(t, handler, http.MethodGet, "/api/workspaces/ws-1/documents", "", extra)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rr.Code)
			}
			if payload["code"] != "UNAUTHORIZED" {
				t.Errorf("expected UNAUTHORIZED, got %v", payload["code"])
			}
		})
	}
}

func TestCreateDocumentOverHTTP(t *testing.T) {
	env, handler := newTestHandler(t)
	headers := map[string]string{"Authorization": bearerFor(t, ownerAccount, "Olive")}

	rr, payload := serve(t, handler, http.MethodPost, "/api/workspaces/ws-1/documents", `{"title":"Launch plan"}`, headers)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	document, _ := payload["document"].(map[string]any)
	if document["title"] != "Launch plan" || document["slug"] != "launch-plan" {
		t.Fatalf("unexpected document %v", document)
	}
	revision, _ := payload["revision"].(map[string]any)
	if revision["version"] != float64(1) {
		t.Fatalf("expected first revision, got %v", revision)
	}
	if got := env.store.document(document["id"].(string)).Title; got != "Launch plan" {
		t.Fatalf("expected stored title, got %q", got)
	}

	rr, payload = serve(t, handler, http.MethodGet, "/api/workspaces/ws-1/documents", "", headers)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if documents, _ := payload["documents"].([]any); len(documents) != 1 {
		t.Fatalf("expected one document, got %v", payload["documents"])
	}
}

func TestCreateDocumentOverHTTPErrors(t *testing.T) {
	_, handler := newTestHandler(t)
	headers := map[string]string{"Authorization": bearerFor(t, ownerAccount, "Olive")}

	rr, payload := serve(t, handler, http.MethodPost, "/api/workspaces/ws-1/documents", `{"title":`, headers)
	if rr.Code != http.StatusBadRequest || payload["code"] != "INVALID_BODY" {
		t.Fatalf("expected 400 INVALID_BODY, got %d %v", rr.Code, payload)
	}

	rr, payload = serve(t, handler, http.MethodPost, "/api/workspaces/ws-1/documents", `{"status":"gone"}`, headers)
	if rr.Code != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected 422 VALIDATION_ERROR, got %d %v", rr.Code, payload)
	}

	outsider := map[string]string{"Authorization": bearerFor(t, "acct-outsider", "Otto")}
	rr, payload = serve(t, handler, http.MethodPost, "/api/workspaces/ws-1/documents", `{"title":"Nope"}`, outsider)
	if rr.Code != http.StatusForbidden || payload["code"] != "FORBIDDEN" {
		t.Fatalf("expected 403 FORBIDDEN, got %d %v", rr.Code, payload)
	}
}

func TestUnknownRoute(t *testing.T) {
	_, handler := newTestHandler(t)
	rr, payload := serve(t, handler, http.MethodGet, "/api/nowhere", "", nil)
	if rr.Code != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %v", rr.Code, payload)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, handler := newTestHandler(t)

	rr, _ := serve(t, handler, http.MethodGet, "/api/health", "", map[string]string{"X-Request-ID": "req-42"})
	if got := rr.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	rr, _ = serve(t, handler, http.MethodGet, "/api/health", "", nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestShareLinkOverHTTP(t *testing.T) {
	env, handler := newTestHandler(t)
	doc := env.createDocument(t, ownerActor, CreateDocumentInput{Title: "Roadmap"})
	headers := map[string]string{"Authorization": bearerFor(t, ownerAccount, "Olive")}

	rr, payload := serve(t, handler, http.MethodPost, "/api/workspaces/ws-1/documents/"+doc.ID+"/share-links",
		`{"accessLevel":"viewer","password":"hunter2"}`, headers)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	link, _ := payload["shareLink"].(map[string]any)
	if link["hasPassword"] != true {
		t.Fatalf("expected hasPassword, got %v", link)
	}
	if _, leaked := link["passwordHash"]; leaked {
		t.Fatalf("password hash must not be exposed")
	}
	token := link["token"].(string)

	rr, payload = serve(t, handler, http.MethodPost, "/api/share/"+token+"/resolve", `{}`, nil)
	if rr.Code != http.StatusUnauthorized || payload["code"] != "SHARE_LINK_PASSWORD_REQUIRED" {
		t.Fatalf("expected 401 SHARE_LINK_PASSWORD_REQUIRED, got %d %v", rr.Code, payload)
	}

	rr, payload = serve(t, handler, http.MethodPost, "/api/share/"+token+"/resolve", `{"password":"hunter2"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if payload["accessLevel"] != "viewer" || payload["createdByMembershipId"] != "m-owner" {
		t.Fatalf("unexpected resolution %v", payload)
	}
	resolved, _ := payload["document"].(map[string]any)
	if resolved["id"] != doc.ID || resolved["viewCount"] != float64(1) {
		t.Fatalf("unexpected document %v", resolved)
	}

	rr, payload = serve(t, handler, http.MethodGet, "/api/share/"+token+"/author-documents", "",
		map[string]string{shareLinkPasswordHeader: "hunter2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if documents, _ := payload["documents"].([]any); len(documents) != 1 {
		t.Fatalf("expected the current document, got %v", payload["documents"])
	}
}

func TestResolveShareLinkWithoutBody(t *testing.T) {
	env, handler := newTestHandler(t)
	open := env.shareDocument(t, ownerActor, env.createDocument(t, ownerActor, CreateDocumentInput{Title: "Roadmap"}).ID, CreateShareLinkInput{})
	locked := env.shareDocument(t, ownerActor, env.createDocument(t, ownerActor, CreateDocumentInput{Title: "Budget"}).ID,
		CreateShareLinkInput{Password: ptr("hunter2")})

	rr, payload := serve(t, handler, http.MethodPost, "/api/share/"+open.Token+"/resolve", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resolved, _ := payload["document"].(map[string]any); resolved["viewCount"] != float64(1) {
		t.Fatalf("unexpected resolution %v", payload)
	}

	rr, payload = serve(t, handler, http.MethodPost, "/api/share/"+locked.Token+"/resolve", "", nil)
	if rr.Code != http.StatusUnauthorized || payload["code"] != "SHARE_LINK_PASSWORD_REQUIRED" {
		t.Fatalf("expected 401 SHARE_LINK_PASSWORD_REQUIRED, got %d %v", rr.Code, payload)
	}
}

func TestGuestSessionOverHTTP(t *testing.T) {
	env, handler := newTestHandler(t)
	doc := env.createDocument(t, ownerActor, CreateDocumentInput{Title: "Roadmap"})
	link := env.shareDocument(t, ownerActor, doc.ID, CreateShareLinkInput{AccessLevel: "commenter"})
	env.allowEdits(t, link.ID)

	rr, payload := serve(t, handler, http.MethodPost, "/api/share/"+link.Token+"/accept", `{"email":"guest@example.com"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	sessionToken, _ := payload["sessionToken"].(string)
	if sessionToken == "" || payload["accessLevel"] != "commenter" {
		t.Fatalf("unexpected grant %v", payload)
	}

	rr, payload = serve(t, handler, http.MethodGet, "/api/guest/session", "", map[string]string{"Authorization": "Bearer " + sessionToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	guest, _ := payload["session"].(map[string]any)
	if guest["documentId"] != doc.ID {
		t.Fatalf("unexpected guest session %v", guest)
	}

	rr, _ = serve(t, handler, http.MethodGet, "/api/guest/session", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, handler := newTestHandler(t)
	serve(t, handler, http.MethodGet, "/api/health", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "odocs_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}
