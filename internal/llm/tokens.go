package llm

import (
	"strings"

	"foundry/shared/models"

	"github.com/pkoukk/tiktoken-go"
	openaigo "github.com/sashabaranov/go-openai"
)

const fallbackEncoding = "cl100k_base"

// estimateTokens считает токены текста токенизатором модели. Для незнакомых
// моделей используется cl100k_base; если токенизатор недоступен, результат 0.
func estimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return 0
		}
	}
	return len(enc.Encode(text, nil, nil))
}

// estimateUsage оценивает usage, когда OpenAI его не вернул.
func estimateUsage(model string, messages []Message, completion string) models.TokenUsage {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	prompt := estimateTokens(model, strings.Join(parts, "\n"))
	compl := estimateTokens(model, completion)
	return models.TokenUsage{PromptTokens: prompt, CompletionTokens: compl, TotalTokens: prompt + compl}
}

// toUsage переводит usage OpenAI: total берется из ответа или считается как сумма.
func toUsage(u openaigo.Usage) models.TokenUsage {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return models.TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: total}
}
