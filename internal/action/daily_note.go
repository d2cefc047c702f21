package action

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/yuckyman/url-portal/shared/clock"
)

// DailyNote creates today's journal entry from the vault template
type DailyNote struct {
	vault  Vault
	git    Committer
	clock  clock.Clock
	logger *slog.Logger
}

// NewDailyNote creates the open_daily action
func NewDailyNote(vault Vault, git Committer, clk clock.Clock, logger *slog.Logger) *DailyNote {
	return &DailyNote{
		vault:  vault,
		git:    git,
		clock:  clk,
		logger: logger,
	}
}

// Execute creates the note if needed and commits it. A git failure is reported
// as a warning on an otherwise successful result.
func (a *DailyNote) Execute(ctx context.Context, _ map[string]any) (map[string]any, error) {
	now := a.clock.Now()

	rel, created, err := a.ensure(now)
	if err != nil {
		return nil, err
	}

	day := now.Format(time.DateOnly)
	result := map[string]any{
		"success":   true,
		"file_path": rel,
		"created":   created,
	}
	if created {
		result["message"] = "Created daily note for " + day
	} else {
		result["message"] = "Daily note already exists for " + day
	}
	if u := a.vault.GiteaURL(rel); u != "" {
		result["gitea_url"] = u
	}

	if created && a.git != nil {
		if err := a.git.CommitAndPush(ctx, rel, "create daily note "+day); err != nil {
			result["git_error"] = err.Error()
			result["warning"] = "Daily note created but git operations failed"
		} else {
			result["git_success"] = true
		}
	}

	return result, nil
}

// ensure writes the journal entry for now from the template unless it exists.
// It returns the repo-relative path and whether the file was created.
func (a *DailyNote) ensure(now time.Time) (string, bool, error) {
	rel := a.vault.DailyNoteRel(now)
	abs := a.vault.Abs(rel)

	if _, err := os.Stat(abs); err == nil {
		a.logger.Debug("Daily note already exists", slog.String("file_path", rel))
		return rel, false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", false, fmt.Errorf("failed to stat daily note: %w", err)
	}

	templatePath := a.vault.Abs(a.vault.TemplatePath)
	template, err := os.ReadFile(templatePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("daily note template not found: %s", templatePath)
		}
		return "", false, fmt.Errorf("failed to read template: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create journal directory: %w", err)
	}

	content := renderTemplate(string(template), now)

	// O_EXCL keeps a concurrent creator from being overwritten
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return rel, false, nil
		}
		return "", false, fmt.Errorf("failed to write daily note: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", false, fmt.Errorf("failed to write daily note: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", false, fmt.Errorf("failed to write daily note: %w", err)
	}

	a.logger.Info("Created daily note", slog.String("file_path", rel))
	return rel, true, nil
}

// renderTemplate fills the date placeholders of a daily note template
func renderTemplate(content string, now time.Time) string {
	day := now.Format(time.DateOnly)
	long := now.Format("Monday, January 02, 2006")

	return strings.NewReplacer(
		"{{date}}", day,
		"{{DATE}}", day,
		"{{title}}", day,
		"{{TITLE}}", day,
		"{{date_long}}", long,
		"{{DATE_LONG}}", long,
		"{{date_iso}}", day,
		"{{DATE_ISO}}", day,
	).Replace(content)
}
