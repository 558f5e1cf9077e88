package knowledge

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/vector"
)

// ErrNoRelevantContext reports that nothing scored above the
// similarity threshold. Callers decide whether to degrade to a plain
// completion or answer that no knowledge is available.
var ErrNoRelevantContext = errors.New("no relevant context")

const contextPreamble = "Answer using the following context. If the context is insufficient, say so."

// Context is the assembled retrieval result handed to the completion
// path.
type Context struct {
	Text    string       `json:"text"`
	Hits    []vector.Hit `json:"hits"`
	Tokens  int          `json:"tokens"`
	Sources []string     `json:"sources"`
}

// SystemInstruction renders the context as the system turn prepended
// to the outgoing messages.
func (c *Context) SystemInstruction() string {
	return contextPreamble + "\n\n" + c.Text
}

// counter measures snippet sizes for the assembly budget.
type counter interface {
	count(text string) int
}

// tokenCounter counts with a tiktoken encoding. Encodings are cached
// per model because construction loads the BPE tables.
type tokenCounter struct {
	enc *tiktoken.Tiktoken
}

var (
	encodingMu    sync.Mutex
	encodingCache = map[string]*tiktoken.Tiktoken{}
)

func newTokenCounter(model string) (*tokenCounter, error) {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return &tokenCounter{enc: enc}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("loading tokenizer for %s: %w", model, err)
		}
	}

	encodingCache[model] = enc
	return &tokenCounter{enc: enc}, nil
}

func (tc *tokenCounter) count(text string) int {
	return len(tc.enc.Encode(text, nil, nil))
}

// Retriever assembles scored hits into a single context block under a
// token budget.
type Retriever struct {
	budget  int
	counter counter
}

func NewRetriever(cfg config.RetrievalConfig) (*Retriever, error) {
	tc, err := newTokenCounter(cfg.TokenizerModel)
	if err != nil {
		return nil, err
	}
	return &Retriever{budget: cfg.ContextBudgetTokens, counter: tc}, nil
}

// Assemble concatenates hits in the given (descending score) order
// until the budget is spent. The top hit is always included even when
// it alone exceeds the budget; the budget gates everything after it.
func (r *Retriever) Assemble(hits []vector.Hit) (*Context, error) {
	kept := make([]vector.Hit, 0, len(hits))
	sources := make([]string, 0, 2)
	seen := map[string]bool{}

	var b strings.Builder
	used := 0
	for _, hit := range hits {
		if hit.Text == "" {
			continue
		}
		cost := r.counter.count(hit.Text)
		if len(kept) > 0 && used+cost > r.budget {
			break
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(hit.Text)
		used += cost
		kept = append(kept, hit)

		if kb, ok := hit.Metadata["knowledge_base"].(string); ok && !seen[kb] {
			seen[kb] = true
			sources = append(sources, kb)
		}
	}

	if len(kept) == 0 {
		return nil, ErrNoRelevantContext
	}

	return &Context{
		Text:    b.String(),
		Hits:    kept,
		Tokens:  used,
		Sources: sources,
	}, nil
}
