package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/FranksOps/kwscout/internal/pipeline"
	"github.com/FranksOps/kwscout/internal/queue"
	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/FranksOps/kwscout/internal/storage/memory"
)

const owner = "owner-1"

type testEnv struct {
	srv   *Server
	store *memory.Backend
	queue *queue.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	q := queue.NewMemory(queue.MemoryConfig{Buffer: 100}, nil)
	t.Cleanup(func() { _ = q.Close() })
	return &testEnv{
		srv:   New(Config{}, store, pipeline.New(store, q, nil), nil),
		store: store,
		queue: q,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := e.srv.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("invalid json %q: %v", raw, err)
		}
	}
	return resp, body
}

func uploadRequest(t *testing.T, filename, contentType, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/keywords", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(DefaultOwnerHeader, owner)
	return req
}

func get(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(DefaultOwnerHeader, owner)
	return req
}

func errorsOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	errs, ok := body["errors"].(map[string]any)
	if !ok {
		t.Fatalf("expected errors envelope, got %v", body)
	}
	return errs
}

func TestCreateKeywords_ValidCSV(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, uploadRequest(t, "keywords.csv", "text/csv", "Apple\nbanana\n\ncherry\n"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	if body["meta"] != MsgUploadSuccess {
		t.Errorf("expected upload success meta, got %v", body["meta"])
	}
	data := body["data"].(map[string]any)
	if data["created"].(float64) != 3 {
		t.Errorf("expected 3 created, got %v", data["created"])
	}

	list, total, _ := env.store.List(context.Background(), owner, 1, 10)
	if total != 3 || list[0].Name != "Apple" || list[0].FetchStatus != storage.StatusPending {
		t.Errorf("unexpected stored keywords %+v", list)
	}
}

func TestCreateKeywords_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/keywords", nil)
	req.Header.Set(DefaultOwnerHeader, owner)

	resp, body := env.do(t, req)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if code := errorsOf(t, body)["code"]; code != "invalid_file" {
		t.Errorf("expected invalid_file, got %v", code)
	}
}

func TestCreateKeywords_WrongType(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, uploadRequest(t, "wrong_type.txt", "text/plain", "Apple\n"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	errs := errorsOf(t, body)
	if errs["code"] != "wrong_type" {
		t.Errorf("expected wrong_type, got %v", errs["code"])
	}
	details, _ := errs["details"].([]any)
	if len(details) != 1 || details[0] != "File must be a CSV" {
		t.Errorf("unexpected details %v", errs["details"])
	}
}

func TestCreateKeywords_MalformedRow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, uploadRequest(t, "keywords.csv", "text/csv", "Apple\nbanana,extra\n"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if code := errorsOf(t, body)["code"]; code != "invalid_file" {
		t.Errorf("expected invalid_file, got %v", code)
	}
	if _, total, _ := env.store.List(context.Background(), owner, 1, 10); total != 0 {
		t.Errorf("rejected batch must not create keywords, got %d", total)
	}
}

func TestRequiresOwner(t *testing.T) {
	env := newTestEnv(t)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/keywords", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/keywords", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/downloads", nil),
	} {
		resp, body := env.do(t, req)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", req.Method, req.URL.Path, resp.StatusCode)
			continue
		}
		if code := errorsOf(t, body)["code"]; code != "unauthorized" {
			t.Errorf("expected unauthorized code, got %v", code)
		}
	}
}

func seed(t *testing.T, env *testEnv, ownerID string, names ...string) []*storage.Keyword {
	t.Helper()
	out := make([]*storage.Keyword, 0, len(names))
	for _, n := range names {
		kw, err := env.store.Create(context.Background(), ownerID, n)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		out = append(out, kw)
	}
	return out
}

func TestListKeywords_Paginates(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env, owner, "a", "b", "c")
	seed(t, env, "someone-else", "x")

	resp, body := env.do(t, get("/api/v1/keywords?page=1&per_page=2"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 keywords, got %d", len(data))
	}
	meta := body["meta"].(map[string]any)
	if meta["page"].(float64) != 1 || meta["per_page"].(float64) != 2 || meta["total_items"].(float64) != 3 {
		t.Errorf("unexpected meta %v", meta)
	}
}

func TestListKeywords_EmptyAndDefaults(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, get("/api/v1/keywords?page=abc"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if data, ok := body["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("expected empty array, got %v", body["data"])
	}
	meta := body["meta"].(map[string]any)
	if meta["page"].(float64) != 1 || meta["per_page"].(float64) != float64(storage.DefaultPerPage) || meta["total_items"].(float64) != 0 {
		t.Errorf("unexpected meta %v", meta)
	}
}

func TestShowKeyword_Filters(t *testing.T) {
	env := newTestEnv(t)
	kw := seed(t, env, owner, "vpn")[0]
	_, err := env.store.Transition(kw.ID, storage.Fetched(
		[]string{"https://www.thetopvpn.com", "https://www.nordvpn.com", "https://www.vnexpress.net"},
		[]string{"https://www.topvpn.com/VPN", "https://www.nordvpn.com", "https://www.vnexpress.net"},
	))
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	tests := []struct {
		name       string
		query      string
		wantAds    []string
		wantResult []string
	}{
		{"no filters", "", nil, nil},
		{"ad substring", "?adwords_url_contains=vpn", []string{"https://www.thetopvpn.com", "https://www.nordvpn.com"}, nil},
		{"partial result filter", "?word=vpn", nil, nil},
		{"result threshold", "?word=vpn&match_at_least=2", nil, []string{"https://www.topvpn.com/VPN"}},
		{"invalid threshold", "?word=vpn&match_at_least=lots", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, get("/api/v1/keywords/"+kw.ID+tt.query))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			data := body["data"].(map[string]any)
			if data["id"] != kw.ID || data["ads_top_count"].(float64) != 3 {
				t.Errorf("unexpected keyword fields %v", data)
			}
			assertURLs(t, "matching_adword_urls", data["matching_adword_urls"], tt.wantAds)
			assertURLs(t, "matching_result_urls", data["matching_result_urls"], tt.wantResult)
		})
	}
}

func assertURLs(t *testing.T, field string, got any, want []string) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Errorf("%s: expected null, got %v", field, got)
		}
		return
	}
	list, ok := got.([]any)
	if !ok {
		t.Fatalf("%s: expected array, got %v", field, got)
	}
	if len(list) != len(want) {
		t.Fatalf("%s: expected %v, got %v", field, want, list)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("%s[%d]: expected %s, got %v", field, i, want[i], list[i])
		}
	}
}

func TestShowKeyword_NotFound(t *testing.T) {
	env := newTestEnv(t)
	other := seed(t, env, "someone-else", "secret")[0]

	for _, id := range []string{"missing", other.ID} {
		resp, body := env.do(t, get("/api/v1/keywords/"+id))
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", id, resp.StatusCode)
			continue
		}
		if code := errorsOf(t, body)["code"]; code != "not_found" {
			t.Errorf("expected not_found, got %v", code)
		}
	}
}

func TestDownloadKeywords(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env, owner, "apple", "banana")
	seed(t, env, "someone-else", "secret")

	resp, err := env.srv.App.Test(get("/api/v1/downloads"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected csv content type, got %s", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "keywords.csv") {
		t.Errorf("expected attachment filename, got %s", cd)
	}

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(rows) != 3 || rows[1][1] != "apple" || rows[2][1] != "banana" {
		t.Errorf("unexpected export %v", rows)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response %d %v", resp.StatusCode, body)
	}
}
