package crowdin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

const testProjectID = 42

type storedFile struct {
	Name    string
	Content string
}

type addedTranslation struct {
	Language  string
	FileID    int64
	StorageID int64
}

// fakeCrowdin serves the subset of the Crowdin API used by Client.
type fakeCrowdin struct {
	mu           sync.Mutex
	info         ProjectInfo
	dirs         []DirectoryInfo
	files        map[int64][]FileInfo
	storages     map[int64]storedFile
	updates      map[int64]int64
	translations []addedTranslation
	pendingPolls int
	archive      []byte
	archiveDelay time.Duration
	nextID       int64

	server *httptest.Server
}

func newFakeCrowdin(t *testing.T) *fakeCrowdin {
	t.Helper()
	f := &fakeCrowdin{
		info:     ProjectInfo{Name: ProjectName},
		files:    map[int64][]FileInfo{},
		storages: map[int64]storedFile{},
		updates:  map[int64]int64{},
		nextID:   1000,
	}

	p := "/projects/" + strconv.Itoa(testProjectID)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+p, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, f.info)
	})
	mux.HandleFunc("GET "+p+"/directories", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writePage(w, r, f.dirs)
	})
	mux.HandleFunc("POST "+p+"/directories", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Name string }
		decode(r, &req)
		f.mu.Lock()
		defer f.mu.Unlock()
		id := f.id()
		f.dirs = append(f.dirs, DirectoryInfo{ID: id, Name: req.Name})
		writeData(w, idResponse{ID: id})
	})
	mux.HandleFunc("GET "+p+"/files", func(w http.ResponseWriter, r *http.Request) {
		dirID, _ := strconv.ParseInt(r.URL.Query().Get("directoryId"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		writePage(w, r, f.files[dirID])
	})
	mux.HandleFunc("POST "+p+"/files", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DirectoryID int64  `json:"directoryId"`
			StorageID   int64  `json:"storageId"`
			Name        string `json:"name"`
			Type        string `json:"type"`
		}
		decode(r, &req)
		if req.Type != "ini" {
			http.Error(w, "bad type", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		id := f.id()
		f.files[req.DirectoryID] = append(f.files[req.DirectoryID], FileInfo{ID: id, Name: req.Name})
		f.updates[id] = req.StorageID
		writeData(w, idResponse{ID: id})
	})
	mux.HandleFunc("PUT "+p+"/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		var req struct {
			StorageID int64 `json:"storageId"`
		}
		decode(r, &req)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.updates[id] = req.StorageID
		writeData(w, map[string]any{"id": id})
	})
	mux.HandleFunc("POST /storages", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		id := f.id()
		f.storages[id] = storedFile{Name: r.Header.Get("Crowdin-API-FileName"), Content: string(body)}
		writeData(w, idResponse{ID: id})
	})
	mux.HandleFunc("POST "+p+"/translations/{lang}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FileID              int64 `json:"fileId"`
			StorageID           int64 `json:"storageId"`
			ImportEqSuggestions bool  `json:"importEqSuggestions"`
			AutoApproveImported bool  `json:"autoApproveImported"`
		}
		decode(r, &req)
		if req.ImportEqSuggestions || req.AutoApproveImported {
			http.Error(w, "unexpected flags", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.translations = append(f.translations, addedTranslation{Language: r.PathValue("lang"), FileID: req.FileID, StorageID: req.StorageID})
		writeData(w, map[string]any{})
	})
	mux.HandleFunc("POST "+p+"/translations/builds", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SkipUntranslatedStrings bool `json:"skipUntranslatedStrings"`
		}
		decode(r, &req)
		if !req.SkipUntranslatedStrings {
			http.Error(w, "expected skipUntranslatedStrings", http.StatusBadRequest)
			return
		}
		writeData(w, idResponse{ID: 7})
	})
	mux.HandleFunc("GET "+p+"/translations/builds/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		status := "finished"
		if f.pendingPolls > 0 {
			f.pendingPolls--
			status = "inProgress"
		}
		writeData(w, map[string]any{"id": 7, "status": status})
	})
	mux.HandleFunc("GET "+p+"/translations/builds/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, urlResponse{URL: f.server.URL + "/archive.zip"})
	})
	mux.HandleFunc("GET /archive.zip", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "pre-signed urls take no credentials", http.StatusBadRequest)
			return
		}
		time.Sleep(f.archiveDelay)
		w.Write(f.archive)
	})

	f.server = httptest.NewServer(checkAuth(mux))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCrowdin) client() *Client {
	return &Client{
		BaseURL:      f.server.URL,
		ProjectID:    testProjectID,
		Token:        "secret",
		HTTP:         f.server.Client(),
		PollInterval: 5 * time.Millisecond,
	}
}

func (f *fakeCrowdin) id() int64 {
	f.nextID++
	return f.nextID
}

func checkAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archive.zip" && r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page := []map[string]any{}
	for i := offset; i < len(items) && i < offset+limit; i++ {
		page = append(page, map[string]any{"data": items[i]})
	}
	writeData(w, page)
}

func decode(r *http.Request, v any) {
	json.NewDecoder(r.Body).Decode(v)
}
