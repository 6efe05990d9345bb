package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/hrygo/nfintake/plugin/ai/timeout"
)

const extractionPrompt = `You read Brazilian electronic invoices (NF-e / DANFE).
Return ONLY a JSON object with this shape:
{
  "supplier": {"legal_name": string, "trade_name": string, "tax_id": string},
  "billed_to": {"name": string, "tax_id": string},
  "invoice_number": string,
  "issue_date": "YYYY-MM-DD",
  "description": string,
  "total_amount": number,
  "categories": [string],
  "installments": [{"due_date": "YYYY-MM-DD"}]
}
Rules:
- tax_id keeps the document punctuation (CNPJ or CPF) as printed.
- description summarizes the products or services in one sentence.
- categories are upper-case expense labels, most relevant first (e.g. "MAINTENANCE", "FUEL", "AGRICULTURAL INPUTS").
- When no installments are printed, use a single installment due on the issue date.
- If the document is not an invoice, return {"error": "<reason>"}.`

// Extractor turns an invoice document into structured fields.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (*ExtractedInvoice, error)
}

type geminiExtractor struct {
	client *genai.Client
	model  string
}

// NewExtractor creates a Gemini backed Extractor.
func NewExtractor(ctx context.Context, cfg *ExtractionConfig) (Extractor, error) {
	if cfg.Model == "" {
		return nil, errors.New("extraction model is required")
	}
	client, err := newGeminiClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return &geminiExtractor{client: client, model: cfg.Model}, nil
}

func (e *geminiExtractor) Extract(ctx context.Context, pdf []byte) (*ExtractedInvoice, error) {
	if len(pdf) == 0 {
		return nil, errors.New("empty document")
	}

	model := e.client.GenerativeModel(e.model)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(extractionPrompt)}}

	start := time.Now()
	var raw string
	err := withRetry(ctx, "gemini.extract", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout.ExtractionTimeout)
		defer cancel()

		resp, err := model.GenerateContent(callCtx,
			genai.Blob{MIMEType: "application/pdf", Data: pdf},
			genai.Text("Extract the invoice fields."),
		)
		if err != nil {
			return err
		}
		raw, err = responseText(resp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("document extraction failed: %w", err)
	}

	invoice, err := ParseExtraction(raw)
	if err != nil {
		slog.Warn("extraction response rejected",
			"model", e.model,
			"response", truncate(raw, timeout.MaxTruncateLength),
			"error", err,
		)
		return nil, err
	}

	slog.Info("invoice extracted",
		"model", e.model,
		"invoice_number", invoice.InvoiceNumber,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return invoice, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
