package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/capmd/capmd/pkg/appendlog"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/workspace"
)

// fileReadData is a file read response, optionally enriched by the format,
// include, appends, and since query parameters.
type fileReadData struct {
	fileData
	Document *appendlog.Document  `json:"document,omitempty"`
	Title    string               `json:"title,omitempty"`
	Stats    *appendlog.TaskStats `json:"stats,omitempty"`
	Appends  []*models.Append     `json:"appends,omitempty"`
	Cursor   string               `json:"appendsCursor,omitempty"`
	Entry    *models.Append       `json:"entry,omitempty"`
}

// listingData is a folder listing response.
type listingData struct {
	Path       string     `json:"path"`
	Files      []fileData `json:"files"`
	Folders    []string   `json:"folders"`
	Total      int        `json:"total"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// handleRead serves GET /r/{key}/*: a folder listing when the tail is empty
// or ends with a slash, a file read otherwise.
func (s *handlers) handleRead(w http.ResponseWriter, r *http.Request) {
	if isFolderRequest(r) {
		s.listFolder(w, r, models.PermissionRead)
		return
	}
	s.readFile(w, r)
}

func (s *handlers) readFile(w http.ResponseWriter, r *http.Request) {
	path, err := wildcardPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth, err := s.resolveKey(r, models.PermissionRead, path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f, err := s.svc.Store.FindFileByPath(r.Context(), auth.WorkspaceID, path)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			// A soft-deleted file inside the recovery window is
			// acknowledged as gone rather than unknown.
			if del, derr := s.svc.Store.FindDeletedFileByPath(r.Context(), auth.WorkspaceID, path); derr == nil && del != nil {
				writeError(w, r, models.ErrFileDeleted)
				return
			}
		}
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	data := fileReadData{fileData: fileToData(f, q.Get("format") != "parsed")}

	if q.Get("format") == "parsed" {
		doc := appendlog.ParseDocument(f.Content)
		data.Document = doc
		data.Title = doc.Title()
	}
	if q.Get("include") == "stats" {
		stats, err := s.svc.Appends.Stats(r.Context(), auth.WorkspaceID, path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data.Stats = stats
	}
	if n := queryInt(r, "appends", 0); n > 0 || q.Get("since") != "" {
		page, err := s.svc.Appends.List(r.Context(), auth.WorkspaceID, path, q.Get("since"), n)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data.Appends = page.Entries
		data.Cursor = page.NextCursor
	}
	if id := q.Get("entry"); id != "" {
		entry, err := s.svc.Appends.Get(r.Context(), auth.WorkspaceID, path, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data.Entry = entry
	}

	w.Header().Set("ETag", f.ETag())
	writeData(w, http.StatusOK, data)
}

// listFolder serves a folder listing rooted either at the key's own scope
// (bare key URL) or at an explicit subfolder of it.
func (s *handlers) listFolder(w http.ResponseWriter, r *http.Request, required models.Permission) {
	tail := chiTrimmedTail(r)
	var (
		workspaceID string
		folder      string
	)

	if tail == "" {
		a, err := s.resolveKey(r, required, "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		folder = scopeFolder(a.ScopeType, a.ScopePath)
		workspaceID = a.WorkspaceID
	} else {
		f, err := pathutil.NormalizeFolder("/" + tail)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a, err := s.resolveKey(r, required, strings.TrimSuffix(f, "/"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		folder = f
		workspaceID = a.WorkspaceID
	}

	opts := workspace.ListOptions{
		Recursive: r.URL.Query().Get("recursive") == "true",
		Sort:      workspace.SortField(r.URL.Query().Get("sort")),
		Desc:      r.URL.Query().Get("order") == "desc",
		Limit:     queryInt(r, "limit", 0),
		Cursor:    r.URL.Query().Get("cursor"),
	}
	if opts.Sort == "" {
		opts.Sort = workspace.SortByName
	}

	listing, err := s.svc.Workspace.ListFolder(r.Context(), workspaceID, folder, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data := listingData{
		Path:       folder,
		Files:      make([]fileData, 0, len(listing.Files)),
		Folders:    listing.Folders,
		Total:      listing.Total,
		NextCursor: listing.NextCursor,
	}
	if data.Folders == nil {
		data.Folders = []string{}
	}
	for _, f := range listing.Files {
		data.Files = append(data.Files, fileToData(f, false))
	}
	writeData(w, http.StatusOK, data)
}

// scopeFolder maps a key scope onto the folder its bare URL lists.
func scopeFolder(scopeType models.ScopeType, scopePath string) string {
	switch scopeType {
	case models.ScopeFolder:
		f, err := pathutil.NormalizeFolder(scopePath)
		if err != nil {
			return "/"
		}
		return f
	case models.ScopeFile:
		return pathutil.Parent(scopePath)
	default:
		return "/"
	}
}
