// Package claim turns a free-text claim and its fact-check records into the
// search query and summarization prompt sent to external collaborators.
package claim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veritas/backend/internal/factcheck"
)

const promptTemplate = "Analyze this claim: '%s'. Fact check data: %s. Determine if it's fake, true, or not sure. Provide a brief explanation."

// ImageContextClaim is the claim text used when verifying where an image came from.
const ImageContextClaim = "Verify this image context."

const notAvailable = "N/A"

// BuildSearchQuery returns the claim unchanged. No keyword extraction is done.
func BuildSearchQuery(claimText string) string {
	return claimText
}

// BuildSummaryPrompt embeds the claim verbatim and the records as JSON.
// Quotes in the claim are not escaped.
func BuildSummaryPrompt(claimText string, records []factcheck.ClaimRecord) string {
	if records == nil {
		records = []factcheck.ClaimRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		data = []byte("[]")
	}
	return fmt.Sprintf(promptTemplate, claimText, data)
}

// FormatRecords renders one detail block per record for display.
func FormatRecords(records []factcheck.ClaimRecord) string {
	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Claim: %s\n", orNA(r.Text))
		fmt.Fprintf(&sb, "Rating: %s\n", orNA(r.Rating))
		fmt.Fprintf(&sb, "Source: %s\n", orNA(r.Publisher))
		if r.ReviewURL != "" {
			fmt.Fprintf(&sb, "Review: %s\n", r.ReviewURL)
		}
	}
	return sb.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
