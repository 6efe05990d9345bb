package semantic

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hrygo/nfintake/plugin/ai"
	apperrors "github.com/hrygo/nfintake/server/internal/errors"
	"github.com/hrygo/nfintake/server/internal/observability"
	"github.com/hrygo/nfintake/store"
)

const (
	// DefaultBackfillLimit bounds the vectors filled before answering.
	DefaultBackfillLimit = 200
	// DefaultTopK is the number of facts passed to the model.
	DefaultTopK = 3

	minQuestionLength = 2
	maxQuestionLength = 1000
)

// Fact is a stored movement matched by a question.
type Fact struct {
	ID            int32  `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	// Similarity is cosine similarity rounded to 3 decimals, in [-1, 1].
	Similarity float64 `json:"similarity"`
}

// Answer is a generated answer with the facts it is grounded on.
type Answer struct {
	Answer string `json:"answer"`
	Facts  []Fact `json:"facts"`
}

// QueryService answers free-text questions over recorded movements.
type QueryService struct {
	indexer  *Indexer
	store    Store
	embedder ai.EmbeddingService
	// llm may be nil, in which case answers summarize the facts.
	llm ai.LLMService

	backfillLimit int
	topK          int
}

// NewQueryService creates a QueryService.
func NewQueryService(indexer *Indexer, store Store, embedder ai.EmbeddingService, llm ai.LLMService) *QueryService {
	return &QueryService{
		indexer:       indexer,
		store:         store,
		embedder:      embedder,
		llm:           llm,
		backfillLimit: DefaultBackfillLimit,
		topK:          DefaultTopK,
	}
}

// Answer runs the pipeline: prepare the vector column, backfill missing vectors,
// embed the question, search the nearest movements and generate the answer.
// A failure is returned as an *apperrors.AppError tagged with its stage.
func (q *QueryService) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if n := utf8.RuneCountInString(question); n < minQuestionLength || n > maxQuestionLength {
		return nil, apperrors.Validation(apperrors.StageValidateQuestion, "question must have between 2 and 1000 characters")
	}
	if q.embedder == nil || q.indexer == nil {
		return nil, apperrors.Upstream(apperrors.StageEmbedQuery, "embedding provider is not configured", nil)
	}

	if err := q.indexer.EnsureVectorSchema(ctx); err != nil {
		return nil, apperrors.Storage(apperrors.StagePrepareVector, "failed to prepare vector column", err)
	}

	if _, err := q.indexer.BackfillMissing(ctx, q.backfillLimit); err != nil {
		if errors.Is(err, ErrEmbedding) {
			return nil, apperrors.Upstream(apperrors.StageIndexEmbeddings, "failed to embed pending movements", err)
		}
		return nil, apperrors.Storage(apperrors.StageIndexEmbeddings, "failed to index pending movements", err)
	}

	vector, err := q.embedder.Embed(ctx, question)
	if err != nil {
		return nil, apperrors.Upstream(apperrors.StageEmbedQuery, "failed to embed question", err)
	}

	results, err := q.store.SearchMovementsByVector(ctx, &store.MovementVectorSearch{Vector: vector, Limit: q.topK})
	if err != nil {
		return nil, apperrors.Storage(apperrors.StageVectorSearch, "semantic search failed", err)
	}

	facts := toFacts(results)
	if len(facts) == 0 {
		return &Answer{Answer: InsufficientDataAnswer, Facts: facts}, nil
	}

	if q.llm == nil {
		return &Answer{Answer: summarizeFacts(facts), Facts: facts}, nil
	}

	prompt, err := buildPrompt(question, facts)
	if err != nil {
		return nil, apperrors.Upstream(apperrors.StageLLMGenerate, "failed to build prompt", err)
	}
	text, err := q.llm.Chat(ctx,
		[]ai.Message{ai.SystemPrompt(systemPrompt), ai.UserMessage(prompt)},
		ai.WithMaxTokens(200),
		ai.WithTemperature(0.3),
	)
	if err != nil {
		return nil, apperrors.Upstream(apperrors.StageLLMGenerate, "failed to generate answer", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = InsufficientDataAnswer
	}

	observability.Logger(ctx).Debug("semantic answer generated", "facts", len(facts))
	return &Answer{Answer: text, Facts: facts}, nil
}

// toFacts converts search results, ordered by descending similarity.
func toFacts(results []*store.MovementWithScore) []Fact {
	facts := make([]Fact, 0, len(results))
	for _, r := range results {
		if r == nil || r.Movement == nil || math.IsNaN(r.Similarity) {
			continue
		}
		m := r.Movement
		facts = append(facts, Fact{
			ID:            m.ID,
			InvoiceNumber: m.InvoiceNumber,
			Description:   m.Description,
			Amount:        m.TotalAmount.StringFixed(2),
			Date:          m.IssueDate.Format(store.DateLayout),
			Similarity:    roundSimilarity(r.Similarity),
		})
	}
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Similarity > facts[j].Similarity
	})
	return facts
}

func roundSimilarity(s float64) float64 {
	s = math.Round(s*1000) / 1000
	return math.Max(-1, math.Min(1, s))
}
