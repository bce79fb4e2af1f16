package ocr

import (
	"context"
	"strings"
)

const sampleContract = `MASTER SERVICES AGREEMENT

This Master Services Agreement is entered into between Acme Corporation ("Client") and Globex Services LLC ("Provider").

1. Payment. Client shall pay all invoices within fifteen (15) days. Late payments accrue interest at 5% per month.

2. Termination. Either party may terminate this agreement for convenience. Termination Fee: $50,000 payable by the terminating party.

3. Liability. The party of the first part shall hold unlimited liability for any and all damages arising from the execution of this agreement.
` + "\f" + `4. Renewal. This agreement renews automatically for successive three (3) year terms unless cancelled 180 days before expiry.

5. Governing Law. This agreement shall be governed by the laws of the state of utopia, without regard to its conflict of law provisions.`

// MockProvider returns fixed text regardless of input. Form feeds in the text separate pages.
type MockProvider struct {
	pages []string
}

// NewMockProvider serves text, or a built-in sample contract when text is empty.
func NewMockProvider(text string) *MockProvider {
	if text == "" {
		text = sampleContract
	}
	return &MockProvider{pages: strings.Split(text, "\f")}
}

// NewMockPages serves the given pages verbatim.
func NewMockPages(pages ...string) *MockProvider {
	return &MockProvider{pages: pages}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Extract(ctx context.Context, _ Document) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	pages := make([]string, len(p.pages))
	copy(pages, p.pages)
	return Result{Pages: pages, Method: "mock", Confidence: 1}, nil
}
