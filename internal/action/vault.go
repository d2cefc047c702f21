package action

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Vault describes the notes repository the actions write to
type Vault struct {
	RepoPath     string
	TemplatePath string // relative to RepoPath
	JournalDir   string // relative to RepoPath
	GiteaBaseURL string
	GiteaRepo    string
	Branch       string
	// WorkingCopyRepo is the repo name used in working-copy:// links; empty disables them
	WorkingCopyRepo string
}

// DailyNoteRel returns the repo-relative path of the journal entry for day
func (v Vault) DailyNoteRel(day time.Time) string {
	return path.Join(filepath.ToSlash(v.JournalDir), day.Format(time.DateOnly)+".md")
}

// Abs turns a repo-relative path into a filesystem path
func (v Vault) Abs(rel string) string {
	return filepath.Join(v.RepoPath, filepath.FromSlash(rel))
}

// GiteaURL links to rel in the web UI, or "" when no base URL is configured
func (v Vault) GiteaURL(rel string) string {
	if v.GiteaBaseURL == "" || v.GiteaRepo == "" {
		return ""
	}
	branch := v.Branch
	if branch == "" {
		branch = "main"
	}
	return strings.TrimRight(v.GiteaBaseURL, "/") + "/" + strings.Trim(v.GiteaRepo, "/") +
		"/src/branch/" + url.PathEscape(branch) + "/" + escapePath(rel)
}

// WorkingCopyURL links to rel in the Working Copy iOS app
func (v Vault) WorkingCopyURL(rel string) string {
	if v.WorkingCopyRepo == "" {
		return ""
	}
	q := url.Values{}
	q.Set("repo", v.WorkingCopyRepo)
	q.Set("path", rel)
	return "working-copy://x-callback-url/open?" + q.Encode()
}

func escapePath(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
