package usecase

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"shop-assistant/internal/domain"
)

const defaultShopName = "Miller's Mountain Bikes"

const summaryInstruction = "Summarize the following customer reviews into a single short paragraph, " +
	"highlighting key themes, both positive and negative:"

//go:embed prompts/chatbot.txt
var chatbotTemplate string

//go:embed prompts/shop-info.md
var shopInfo string

// ChatInstructions renders the chat system instructions. It is meant to be
// called once at startup; the result is reused for every turn.
func ChatInstructions() (string, error) {
	return renderInstructions(chatbotTemplate, defaultShopName, shopInfo)
}

func renderInstructions(tmpl, shopName, info string) (string, error) {
	t, err := template.New("chatbot").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("usecase: parse chat template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct {
		ShopName string
		ShopInfo string
	}{
		ShopName: shopName,
		ShopInfo: strings.TrimSpace(info),
	}); err != nil {
		return "", fmt.Errorf("usecase: render chat template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// buildSummaryPrompt keeps review order and separates reviews by a blank line.
func buildSummaryPrompt(reviews []domain.Review) string {
	parts := make([]string, 0, len(reviews))
	for _, r := range reviews {
		parts = append(parts, strings.TrimSpace(r.Content))
	}
	return summaryInstruction + "\n\n" + strings.Join(parts, "\n\n")
}
