package action

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/yuckyman/url-portal/shared/clock"
)

// DefaultWaterDelta is the ounces added when neither payload nor portal config says otherwise
const DefaultWaterDelta = 64

// Hydration adds water to the oz_water frontmatter field of today's note
type Hydration struct {
	daily  *DailyNote
	vault  Vault
	git    Committer
	clock  clock.Clock
	logger *slog.Logger
}

// NewHydration creates the hydration action. It creates today's note via
// daily when the note does not exist yet.
func NewHydration(daily *DailyNote, vault Vault, git Committer, clk clock.Clock, logger *slog.Logger) *Hydration {
	return &Hydration{
		daily:  daily,
		vault:  vault,
		git:    git,
		clock:  clk,
		logger: logger,
	}
}

// Execute bumps oz_water by the resolved delta. With dry_run nothing is written.
func (a *Hydration) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	now := a.clock.Now()
	rel := a.vault.DailyNoteRel(now)
	abs := a.vault.Abs(rel)
	delta := resolveDelta(payload)
	dryRun := resolveBool(payload, "dry_run")

	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		if dryRun {
			return map[string]any{
				"success":  true,
				"message":  "Dry run: daily note not found",
				"oz_water": nil,
				"exists":   false,
			}, nil
		}
		if _, _, err := a.daily.ensure(now); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily note: %w", err)
	}

	front, body, _ := splitFrontmatter(string(data))
	updated, current, next, err := bumpIntField(front, "oz_water", delta)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"success":   true,
		"file_path": rel,
	}
	if u := a.vault.GiteaURL(rel); u != "" {
		result["gitea_url"] = u
	}
	if u := a.vault.WorkingCopyURL(rel); u != "" {
		result["working_copy_url"] = u
	}

	if dryRun {
		result["message"] = "Dry run: no changes applied"
		result["oz_water"] = current
		result["oz_water_next"] = next
		return result, nil
	}

	if err := os.WriteFile(abs, []byte(joinFrontmatter(updated, body)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write daily note: %w", err)
	}

	a.logger.Info("Water added",
		slog.String("file_path", rel),
		slog.Int("delta", delta),
		slog.Int("oz_water", next),
	)

	result["oz_water"] = next
	result["message"] = fmt.Sprintf("Added %doz of water", delta)

	if a.git != nil {
		msg := fmt.Sprintf("add water %s +%doz", now.Format(time.DateOnly), delta)
		if err := a.git.CommitAndPush(ctx, rel, msg); err != nil {
			result["message"] = "Water added but git operations failed"
			result["git_error"] = err.Error()
		} else {
			result["git_success"] = true
		}
	}

	return result, nil
}

// resolveDelta reads delta from the payload, then from the portal config
func resolveDelta(payload map[string]any) int {
	v, ok := lookup(payload, "delta")
	if !ok {
		return DefaultWaterDelta
	}

	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return DefaultWaterDelta
}

func resolveBool(payload map[string]any, key string) bool {
	v, ok := lookup(payload, key)
	if !ok {
		return false
	}

	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return false
}

// lookup checks payload[key] and then payload["config"][key], skipping nulls
func lookup(payload map[string]any, key string) (any, bool) {
	if v, ok := payload[key]; ok && v != nil {
		return v, true
	}
	if cfg, ok := payload["config"].(map[string]any); ok {
		if v, ok := cfg[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
