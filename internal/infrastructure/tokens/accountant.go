package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// modelTokenLimits maps chat model names to total context-window sizes.
// Values are kept slightly under the provider maxima to leave room for
// response framing.
var modelTokenLimits = map[string]int{
	"gpt-35-turbo":           4000,
	"gpt-3.5-turbo":          4000,
	"gpt-35-turbo-16k":       16000,
	"gpt-3.5-turbo-16k":      16000,
	"gpt-4":                  8100,
	"gpt-4-32k":              32000,
	"gpt-4v":                 128000,
	"gpt-4o":                 128000,
	"gpt-4o-mini":            128000,
	"text-embedding-ada-002": 8100,
}

// Accountant counts tokens with the model's own encoding and resolves
// context-window limits. Codecs are cached per model; lookups after the
// first are lock-cheap reads.
type Accountant struct {
	mu     sync.RWMutex
	codecs map[string]tokenizer.Codec
}

func NewAccountant() *Accountant {
	return &Accountant{codecs: make(map[string]tokenizer.Codec)}
}

// LimitFor resolves the context-window size for a model.
func (a *Accountant) LimitFor(model string) (int, bool) {
	limit, ok := modelTokenLimits[model]
	return limit, ok
}

// Count returns the token count of text under the model's encoding. Unknown
// models fall back to cl100k_base; if no codec can be built at all, a
// four-characters-per-token estimate keeps budgeting functional.
func (a *Accountant) Count(model, text string) int {
	codec := a.codecFor(model)
	if codec == nil {
		return len(text) / 4
	}
	n, err := codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

func (a *Accountant) codecFor(model string) tokenizer.Codec {
	a.mu.RLock()
	codec, ok := a.codecs[model]
	a.mu.RUnlock()
	if ok {
		return codec
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if codec, ok := a.codecs[model]; ok {
		return codec
	}

	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			codec = nil
		}
	}
	a.codecs[model] = codec
	return codec
}
