package workspace

import (
	"context"
	"encoding/base64"
	"sort"
	"strconv"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
)

// SortField orders folder listings.
type SortField string

const (
	SortByName     SortField = "name"
	SortByModified SortField = "modified"
	SortBySize     SortField = "size"
)

// ListOptions controls a folder listing.
type ListOptions struct {
	Recursive bool
	Sort      SortField
	Desc      bool
	Limit     int
	Cursor    string
}

// Listing is one page of a folder's contents.
type Listing struct {
	Files []*models.File
	// Folders are the direct virtual subfolders, with trailing slash.
	Folders    []string
	Total      int
	NextCursor string
}

// ListFolder returns the files under folderPath, paginated. Non-recursive
// listings also surface the direct subfolders implied by deeper files.
func (s *Service) ListFolder(ctx context.Context, workspaceID, folderPath string, opts ListOptions) (*Listing, error) {
	prefix, err := pathutil.NormalizeFolder(folderPath)
	if err != nil {
		return nil, err
	}

	files, err := s.store.ListFilesByPrefix(ctx, workspaceID, prefix, true)
	if err != nil {
		return nil, err
	}

	listing := &Listing{}
	if !opts.Recursive {
		direct := files[:0:0]
		seen := map[string]bool{}
		for _, f := range files {
			rest := f.Path[len(prefix):]
			if i := indexSlash(rest); i >= 0 {
				sub := prefix + rest[:i+1]
				if !seen[sub] {
					seen[sub] = true
					listing.Folders = append(listing.Folders, sub)
				}
				continue
			}
			direct = append(direct, f)
		}
		files = direct
		sort.Strings(listing.Folders)
	}

	sortFiles(files, opts.Sort, opts.Desc)
	listing.Total = len(files)

	offset := decodeCursor(opts.Cursor)
	if offset > len(files) {
		offset = len(files)
	}
	files = files[offset:]
	if opts.Limit > 0 && len(files) > opts.Limit {
		files = files[:opts.Limit]
		listing.NextCursor = encodeCursor(offset + opts.Limit)
	}
	listing.Files = files
	return listing, nil
}

func sortFiles(files []*models.File, field SortField, desc bool) {
	less := func(a, b *models.File) bool { return a.Path < b.Path }
	switch field {
	case SortByModified:
		less = func(a, b *models.File) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case SortBySize:
		less = func(a, b *models.File) bool { return a.SizeBytes < b.SizeBytes }
	}
	sort.SliceStable(files, func(i, j int) bool {
		if desc {
			return less(files[j], files[i])
		}
		return less(files[i], files[j])
	})
}

func encodeCursor(offset int) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func indexSlash(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
