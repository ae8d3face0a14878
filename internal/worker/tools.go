package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/waverunner-ai/waverunner/internal/exec"
)

// toolDefinitions returns the tool schemas offered to the model.
func toolDefinitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        "read_file",
				Description: anthropic.String("Read a file relative to the working directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path relative to the working directory",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "write_file",
				Description: anthropic.String("Write a file relative to the working directory, creating parent directories as needed."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path relative to the working directory",
						},
						"content": map[string]interface{}{
							"type":        "string",
							"description": "Full file content",
						},
					},
					Required: []string{"path", "content"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "list_files",
				Description: anthropic.String("List files under a directory relative to the working directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Directory to list (optional, defaults to the working directory)",
						},
					},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "run_command",
				Description: anthropic.String("Run a shell command in the working directory and return its output."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "The shell command to run",
						},
					},
					Required: []string{"command"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "ask_user",
				Description: anthropic.String("Ask the human operator a blocking question. Execution pauses until an answer arrives."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"question": map[string]interface{}{
							"type":        "string",
							"description": "The question to ask",
						},
					},
					Required: []string{"question"},
				},
			},
		},
	}
}

// parseQuestion extracts the question text from an ask_user tool input.
func parseQuestion(input []byte) string {
	var in struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(input, &in); err != nil || in.Question == "" {
		return "the agent asked an unreadable question"
	}
	return in.Question
}

// toolExecutor runs tool calls scoped to one working directory.
type toolExecutor struct {
	dir    string
	runner exec.CommandRunner
}

func newToolExecutor(dir string) *toolExecutor {
	return &toolExecutor{dir: dir, runner: exec.NewRunner()}
}

// execute dispatches one tool call. The returned bool marks an error
// result that the model should see as such.
func (e *toolExecutor) execute(ctx context.Context, name string, input []byte) (string, bool) {
	switch name {
	case "read_file":
		return e.readFile(input)
	case "write_file":
		return e.writeFile(input)
	case "list_files":
		return e.listFiles(input)
	case "run_command":
		return e.runCommand(ctx, input)
	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}

// resolve joins a tool path onto the working directory and rejects
// escapes: a worker only touches its own workspace.
func (e *toolExecutor) resolve(path string) (string, error) {
	full := filepath.Join(e.dir, path)
	rel, err := filepath.Rel(e.dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	return full, nil
}

func (e *toolExecutor) readFile(input []byte) (string, bool) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return err.Error(), true
	}
	full, err := e.resolve(in.Path)
	if err != nil {
		return err.Error(), true
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return err.Error(), true
	}
	return string(data), false
}

func (e *toolExecutor) writeFile(input []byte) (string, bool) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return err.Error(), true
	}
	full, err := e.resolve(in.Path)
	if err != nil {
		return err.Error(), true
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err.Error(), true
	}
	if err := os.WriteFile(full, []byte(in.Content), 0644); err != nil {
		return err.Error(), true
	}
	return fmt.Sprintf("wrote %s (%d bytes)", in.Path, len(in.Content)), false
}

func (e *toolExecutor) listFiles(input []byte) (string, bool) {
	var in struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(input, &in)
	full, err := e.resolve(in.Path)
	if err != nil {
		return err.Error(), true
	}

	var lines []string
	err = filepath.WalkDir(full, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() {
			if rel, err := filepath.Rel(e.dir, path); err == nil {
				lines = append(lines, rel)
			}
		}
		return nil
	})
	if err != nil {
		return err.Error(), true
	}
	if len(lines) == 0 {
		return "(empty)", false
	}
	return strings.Join(lines, "\n"), false
}

func (e *toolExecutor) runCommand(ctx context.Context, input []byte) (string, bool) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return err.Error(), true
	}
	out, err := e.runner.Run(ctx, exec.Command{
		Name: "sh",
		Args: []string{"-c", in.Command},
		Dir:  e.dir,
	})
	if err != nil {
		return fmt.Sprintf("%s\n%s", err, out), true
	}
	if len(out) == 0 {
		return "(no output)", false
	}
	return string(out), false
}
