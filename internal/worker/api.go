package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// APIConfig configures an APISpawner.
type APIConfig struct {
	// Model is the Claude model to use.
	Model string
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string
	// UseBedrock routes requests through AWS Bedrock instead of the API.
	UseBedrock bool
	// AWSRegion is the Bedrock region (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is an optional AWS shared-config profile.
	AWSProfile string
	// MaxIterations caps API round trips per unit. 0 means the default.
	MaxIterations int
}

// APISpawner runs each work unit as an Anthropic Messages API tool loop
// scoped to the unit's workspace directory.
type APISpawner struct {
	client        anthropic.Client
	model         anthropic.Model
	maxIterations int
}

// NewAPISpawner creates an APISpawner from the given configuration.
func NewAPISpawner(cfg APIConfig) (*APISpawner, error) {
	var opts []option.RequestOption

	if cfg.UseBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no Anthropic API key configured")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = 50
	}

	return &APISpawner{
		client:        anthropic.NewClient(opts...),
		model:         model,
		maxIterations: maxIter,
	}, nil
}

const apiSystemPrompt = `You are a software engineering agent working inside an
isolated checkout of a repository. Complete the task you are given using the
available tools, then summarize what you changed. If you are blocked on a
decision only a human can make, use the ask_user tool and wait for the answer.`

// Spawn starts the tool loop for the unit in its own goroutine.
func (s *APISpawner) Spawn(ctx context.Context, unit *models.WorkUnit, dir string, msgs chan<- Message) (Handle, error) {
	loopCtx, cancel := context.WithCancel(ctx)
	h := &apiHandle{
		cancel:  cancel,
		answers: make(chan string, 1),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer close(msgs)
		outcome := s.runLoop(loopCtx, unit, dir, msgs, h.answers)
		h.outcome = outcome
	}()

	return h, nil
}

// runLoop drives the Messages API until the model stops asking for tools.
func (s *APISpawner) runLoop(ctx context.Context, unit *models.WorkUnit, dir string, msgs chan<- Message, answers <-chan string) *Outcome {
	executor := newToolExecutor(dir)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(instructionPrompt(unit))),
	}

	var lastText string
	for i := 0; i < s.maxIterations; i++ {
		resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     s.model,
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: apiSystemPrompt},
			},
			Messages: messages,
			Tools:    toolDefinitions(),
		})
		if err != nil {
			return &Outcome{Success: false, Summary: lastText, Error: fmt.Sprintf("API call failed: %v", err)}
		}

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				lastText = variant.Text
				msgs <- Message{Kind: MessageProgress, Text: variant.Text}
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				var content string
				var isError bool
				if variant.Name == "ask_user" {
					content, isError = askUser(ctx, variant.Input, msgs, answers)
				} else {
					content, isError = executor.execute(ctx, variant.Name, variant.Input)
					msgs <- Message{Kind: MessageProgress, Text: fmt.Sprintf("tool %s", variant.Name)}
				}
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, content, isError))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			return &Outcome{Success: true, Summary: lastText}
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return &Outcome{
		Success: false,
		Summary: lastText,
		Error:   fmt.Sprintf("max iterations (%d) reached", s.maxIterations),
	}
}

// askUser surfaces a blocking question and waits for the answer.
func askUser(ctx context.Context, input []byte, msgs chan<- Message, answers <-chan string) (string, bool) {
	question := parseQuestion(input)
	msgs <- Message{Kind: MessageQuestion, Text: question}

	select {
	case answer := <-answers:
		return answer, false
	case <-ctx.Done():
		return "canceled before an answer arrived", true
	}
}

// apiHandle implements Handle for an API tool loop.
type apiHandle struct {
	cancel  context.CancelFunc
	answers chan string
	done    chan struct{}
	outcome *Outcome

	mu       sync.Mutex
	canceled bool
}

// Wait blocks until the loop finishes or ctx is done.
func (h *apiHandle) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		canceled := h.canceled
		h.mu.Unlock()
		out := h.outcome
		if canceled && out != nil && out.Success {
			out = &Outcome{Success: false, Summary: out.Summary, Error: "canceled"}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the loop by canceling its context.
func (h *apiHandle) Cancel() error {
	h.mu.Lock()
	h.canceled = true
	h.mu.Unlock()
	h.cancel()
	return nil
}

// SendInput delivers an answer to a pending ask_user call. A second
// answer with none pending is dropped rather than blocking the caller.
func (h *apiHandle) SendInput(text string) error {
	select {
	case h.answers <- text:
		return nil
	default:
		return fmt.Errorf("no pending question")
	}
}

// Verify interfaces at compile time.
var (
	_ Spawner = (*APISpawner)(nil)
	_ Handle  = (*apiHandle)(nil)
)
