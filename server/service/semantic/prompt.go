package semantic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InsufficientDataAnswer is returned when no stored movement supports an answer.
const InsufficientDataAnswer = "Not enough data found."

const systemPrompt = `You answer questions about recorded accounts-payable invoices. Be concise and objective.
Answer in ONE direct sentence. Then list up to 3 relevant facts as bullets (invoice number and amount).
Do not explain your method. Do not repeat unnecessary information.
If the facts are not enough to answer, reply exactly: "` + InsufficientDataAnswer + `"`

// buildPrompt renders the question and its grounding facts for the model.
func buildPrompt(question string, facts []Fact) (string, error) {
	payload, err := json.Marshal(facts)
	if err != nil {
		return "", fmt.Errorf("failed to encode facts: %w", err)
	}
	return fmt.Sprintf("Question: %s\nFacts: %s\n", question, payload), nil
}

// summarizeFacts is the answer used when no text generator is configured.
func summarizeFacts(facts []Fact) string {
	var sb strings.Builder
	sb.WriteString("No language model configured. Closest records:")
	for _, f := range facts {
		fmt.Fprintf(&sb, "\n- invoice %s: %s (%s, similarity %.3f)", f.InvoiceNumber, f.Amount, f.Date, f.Similarity)
	}
	return sb.String()
}
