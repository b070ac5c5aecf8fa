package usecase

import (
	"fmt"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
)

const (
	// queryResponseTokenReserve caps the rewrite completion. Too low risks
	// malformed tool-call JSON, too high wastes prompt budget.
	queryResponseTokenReserve = 100

	// answerResponseTokenReserve caps the grounded answer completion.
	answerResponseTokenReserve = 1024

	// messageTokenOverhead approximates the per-message framing cost of the
	// chat format (role, separators) on top of the content tokens.
	messageTokenOverhead = 4

	// fallbackTokenLimit is the conservative context window assumed for
	// models missing from the limit table when strict mode is off.
	fallbackTokenLimit = 4000
)

// remainingBudget returns the prompt token budget left after reserving
// output tokens against the chat model's context window.
func (uc *ChatPipelineUseCase) remainingBudget(reserve int) (int, error) {
	limit, ok := uc.limits.LimitFor(uc.cfg.ChatModel)
	if !ok {
		if uc.cfg.StrictModelLimits {
			return 0, domain.WrapError(domain.ErrUnknownModel, "token budget",
				fmt.Errorf("no context window limit for model %q", uc.cfg.ChatModel))
		}
		limit = fallbackTokenLimit
	}

	budget := limit - reserve
	if budget < 0 {
		return 0, domain.WrapError(domain.ErrBudgetExhausted, "token budget",
			fmt.Errorf("reserved %d output tokens exceeds context window of %d", reserve, limit))
	}
	return budget, nil
}

func (uc *ChatPipelineUseCase) messageTokens(m domain.Message) int {
	return uc.counter.Count(uc.cfg.ChatModel, m.Content) + messageTokenOverhead
}

// buildMessages assembles system content, few-shot examples, past messages
// and the new user content into one bounded message list. Past messages are
// dropped oldest-first until the list fits the budget; the system content,
// few-shots and the new user content are never dropped.
func (uc *ChatPipelineUseCase) buildMessages(rp ports.RenderedPrompt, budget int) []domain.Message {
	system := domain.Message{Role: domain.RoleSystem, Content: rp.SystemContent}
	newUser := domain.Message{Role: domain.RoleUser, Content: rp.NewUserContent}

	used := uc.messageTokens(system) + uc.messageTokens(newUser)
	for _, m := range rp.FewShotMessages {
		used += uc.messageTokens(m)
	}

	kept := make([]domain.Message, 0, len(rp.PastMessages))
	for i := len(rp.PastMessages) - 1; i >= 0; i-- {
		cost := uc.messageTokens(rp.PastMessages[i])
		if used+cost > budget {
			break
		}
		used += cost
		kept = append(kept, rp.PastMessages[i])
	}

	out := make([]domain.Message, 0, len(rp.FewShotMessages)+len(kept)+2)
	out = append(out, system)
	out = append(out, rp.FewShotMessages...)
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i])
	}
	out = append(out, newUser)
	return out
}
