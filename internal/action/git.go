package action

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Committer records a changed file in version control
type Committer interface {
	CommitAndPush(ctx context.Context, rel, message string) error
}

// Git shells out to the git binary against a local clone
type Git struct {
	RepoPath  string
	UserName  string
	UserEmail string
	Push      bool
	Logger    *slog.Logger
}

// CommitAndPush stages rel, commits it with message and pushes when enabled
func (g *Git) CommitAndPush(ctx context.Context, rel, message string) error {
	identity := []string{}
	if g.UserName != "" {
		identity = append(identity, "-c", "user.name="+g.UserName)
	}
	if g.UserEmail != "" {
		identity = append(identity, "-c", "user.email="+g.UserEmail)
	}

	steps := [][]string{
		{"add", rel},
		append(identity, "commit", "-m", message),
	}
	if g.Push {
		steps = append(steps, []string{"push"})
	}

	for _, args := range steps {
		if err := g.run(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func (g *Git) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.RepoPath}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		g.Logger.Error("Git command failed",
			slog.String("command", strings.Join(args, " ")),
			slog.String("output", msg),
		)
		return fmt.Errorf("git %s failed: %s", gitVerb(args), msg)
	}

	g.Logger.Debug("Git command succeeded", slog.String("command", strings.Join(args, " ")))
	return nil
}

// gitVerb skips leading -c options to find the subcommand
func gitVerb(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}
