package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ragsql/model"
	"ragsql/types"

	"github.com/pkoukk/tiktoken-go"
)

// maxChunkChars caps each chunk in the prompt context.
const maxChunkChars = 500

// Composer asks the language model for an answer grounded in retrieved
// chunks.
type Composer struct {
	llm     model.ChatCompleter
	refusal string
	logger  *slog.Logger
}

func NewComposer(llm model.ChatCompleter, refusal string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{llm: llm, refusal: refusal, logger: logger}
}

func (c *Composer) Compose(ctx context.Context, question string, chunks []types.RetrievedChunk) (string, error) {
	start := time.Now()
	defer func() {
		c.logger.Info("LLM answer finished", slog.Duration("took", time.Since(start)))
	}()

	system := fmt.Sprintf(ragSystemPrompt, c.refusal, BuildContext(chunks))
	messages := []types.Message{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleUser, Content: question},
	}
	logPromptSize(ctx, c.logger, messages)

	answer, err := c.llm.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

// BuildContext labels each chunk with its source and index and joins them
// with blank lines.
func BuildContext(chunks []types.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		content := ch.Content
		if r := []rune(content); len(r) > maxChunkChars {
			content = string(r[:maxChunkChars])
		}
		parts[i] = fmt.Sprintf("[%s - chunk %d]\n%s", ch.Metadata.Source, ch.Metadata.ChunkIndex, content)
	}
	return strings.Join(parts, "\n\n")
}

func logPromptSize(ctx context.Context, logger *slog.Logger, messages []types.Message) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
	}
	prompt := b.String()

	count, err := CountTokens(prompt)
	if err != nil {
		logger.Debug("token count unavailable", slog.Any("error", err))
		return
	}
	logger.Debug("prompt size",
		slog.Int("tokens", count),
		slog.Int("chars", len(prompt)))
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens approximates prompt size with the gpt-3.5-turbo encoding. The
// encoding is loaded once per process.
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.EncodingForModel("gpt-3.5-turbo")
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}
