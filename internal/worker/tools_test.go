package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestToolExecutorWriteReadRoundTrip(t *testing.T) {
	e := newToolExecutor(t.TempDir())

	out, isErr := e.execute(context.Background(), "write_file",
		[]byte(`{"path":"pkg/util/helper.go","content":"package util\n"}`))
	if isErr {
		t.Fatalf("write_file error: %s", out)
	}

	out, isErr = e.execute(context.Background(), "read_file",
		[]byte(`{"path":"pkg/util/helper.go"}`))
	if isErr {
		t.Fatalf("read_file error: %s", out)
	}
	if out != "package util\n" {
		t.Errorf("read_file = %q", out)
	}
}

func TestToolExecutorRejectsEscape(t *testing.T) {
	e := newToolExecutor(t.TempDir())

	inputs := []string{
		`{"path":"../outside.txt","content":"x"}`,
		`{"path":"../../etc/passwd","content":"x"}`,
	}
	for _, in := range inputs {
		if out, isErr := e.execute(context.Background(), "write_file", []byte(in)); !isErr {
			t.Errorf("write_file(%s) should be rejected, got %q", in, out)
		}
	}
}

func TestToolExecutorListFiles(t *testing.T) {
	dir := t.TempDir()
	e := newToolExecutor(dir)

	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}

	out, isErr := e.execute(context.Background(), "list_files", []byte(`{}`))
	if isErr {
		t.Fatalf("list_files error: %s", out)
	}
	if !strings.Contains(out, "main.go") {
		t.Errorf("listing missing main.go: %q", out)
	}
	if strings.Contains(out, "HEAD") {
		t.Errorf("listing should skip .git: %q", out)
	}
}

func TestToolExecutorUnknownTool(t *testing.T) {
	e := newToolExecutor(t.TempDir())
	if _, isErr := e.execute(context.Background(), "teleport", []byte(`{}`)); !isErr {
		t.Error("unknown tool should be an error result")
	}
}

func TestParseQuestion(t *testing.T) {
	if q := parseQuestion([]byte(`{"question":"which port?"}`)); q != "which port?" {
		t.Errorf("parseQuestion = %q", q)
	}
	if q := parseQuestion([]byte(`{`)); q == "" {
		t.Error("malformed input should yield a placeholder, not empty")
	}
}
