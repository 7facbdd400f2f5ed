package sync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// newGitClone creates a bare remote with one commit on main and returns a
// clone of it with a committer identity configured.
func newGitClone(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	remoteDir := t.TempDir()
	run(t, remoteDir, "git", "init", "--bare")

	workDir := t.TempDir()
	run(t, workDir, "git", "clone", remoteDir, "repo")
	repoDir := filepath.Join(workDir, "repo")

	run(t, repoDir, "git", "config", "user.email", "test@test.com")
	run(t, repoDir, "git", "config", "user.name", "Test")
	run(t, repoDir, "git", "symbolic-ref", "HEAD", "refs/heads/main")

	if err := os.WriteFile(filepath.Join(repoDir, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatalf("write .gitkeep: %v", err)
	}
	run(t, repoDir, "git", "add", ".")
	run(t, repoDir, "git", "commit", "-m", "init")
	run(t, repoDir, "git", "push", "origin", "main")
	return repoDir
}

func commitCount(t *testing.T, repo string) string {
	t.Helper()
	out, err := exec.Command("git", "-C", repo, "rev-list", "--count", "HEAD").Output()
	if err != nil {
		t.Fatalf("git rev-list: %v", err)
	}
	return strings.TrimSpace(string(out))
}

func TestGitDestination_CommitsOnlyChanges(t *testing.T) {
	repo := newGitClone(t)
	dest := NewGitDestination(repo, "layouts.jsonl", "main")
	ctx := context.Background()

	first := []byte(`{"version":"1","type":"header","record_count":0}` + "\n")
	if err := dest.Write(ctx, first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if got := commitCount(t, repo); got != "2" {
		t.Fatalf("commits after first write = %s, want 2", got)
	}

	if err := dest.Write(ctx, first); err != nil {
		t.Fatalf("unchanged write: %v", err)
	}
	if got := commitCount(t, repo); got != "2" {
		t.Fatalf("unchanged write committed: %s commits", got)
	}

	second := []byte(`{"version":"1","type":"header","record_count":1}` + "\n")
	if err := dest.Write(ctx, second); err != nil {
		t.Fatalf("changed write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(repo, "layouts.jsonl"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(got) != string(second) {
		t.Fatalf("export = %q", got)
	}
	if n := commitCount(t, repo); n != "3" {
		t.Fatalf("commits after change = %s, want 3", n)
	}
	subject, err := exec.Command("git", "-C", repo, "log", "-1", "--format=%s").Output()
	if err != nil {
		t.Fatalf("git log: %v", err)
	}
	if got := strings.TrimSpace(string(subject)); got != "backup: 0 layout records" {
		t.Fatalf("commit subject = %q", got)
	}
}

func TestCommitMessage(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{"", "backup: 0 layout records"},
		{"{\"type\":\"header\"}\n", "backup: 0 layout records"},
		{"{\"type\":\"header\"}\n{}\n{}\n", "backup: 2 layout records"},
	}
	for _, tc := range tests {
		if got := commitMessage([]byte(tc.data)); got != tc.want {
			t.Errorf("commitMessage(%q) = %q, want %q", tc.data, got, tc.want)
		}
	}
}

func TestGitDestination_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
	dest := NewGitDestination(t.TempDir(), "layouts.jsonl", "main")
	err := dest.Write(context.Background(), []byte("{}\n"))
	if err == nil || !strings.Contains(err.Error(), "git checkout") {
		t.Fatalf("expected git checkout error, got %v", err)
	}
}

func TestGitDestination_NestedFile(t *testing.T) {
	repo := newGitClone(t)
	dest := NewGitDestination(repo, "backup/layouts.jsonl", "main")

	if !strings.HasSuffix(dest.Name(), "backup/layouts.jsonl@main") {
		t.Errorf("Name() = %q", dest.Name())
	}

	data := []byte(`{"type":"header"}` + "\n")
	if err := dest.Write(context.Background(), data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(repo, "backup", "layouts.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("%s %v failed: %v", name, args, err)
	}
}
