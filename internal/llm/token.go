package llm

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenFudgeFactor is a safety margin for tokenizer drift between providers.
const TokenFudgeFactor = 1.05

var (
	tkm     *tiktoken.Tiktoken
	tkmOnce sync.Once
)

func getTokenizer() *tiktoken.Tiktoken {
	tkmOnce.Do(func() {
		var err error
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("Warning: failed to load tiktoken encoding: %v. Falling back to heuristic.", err)
		}
	})
	return tkm
}

// EstimateTokens estimates the token count of text. Uses tiktoken when
// available, otherwise a 1:4 character heuristic.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	tokenizer := getTokenizer()
	if tokenizer != nil {
		return len(tokenizer.Encode(text, nil, nil))
	}

	return len(text) / 4
}

// EstimateBudgetedTokens applies the safety margin to the estimation.
func EstimateBudgetedTokens(text string) int {
	return int(float64(EstimateTokens(text)) * TokenFudgeFactor)
}

// EstimateMessagesTokens counts tokens for a conversation, including per-
// message framing overhead (~4 tokens in ChatML-style formats).
func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content) + 4
	}
	return total
}

// TrimToBudget drops the oldest non-system messages until the conversation
// fits the budget. The first message is kept when it is a system prompt.
func TrimToBudget(messages []Message, budget int) []Message {
	if budget <= 0 || EstimateMessagesTokens(messages) <= budget {
		return messages
	}

	keepHead := 0
	if len(messages) > 0 && messages[0].Role == "system" {
		keepHead = 1
	}

	trimmed := append([]Message(nil), messages...)
	for len(trimmed) > keepHead+1 && EstimateMessagesTokens(trimmed) > budget {
		trimmed = append(trimmed[:keepHead], trimmed[keepHead+1:]...)
	}
	return trimmed
}
