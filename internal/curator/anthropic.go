package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultCuratorModel = "claude-3-5-haiku-latest"

const curatorSystemPrompt = `You are a memory curator. You review fragments retrieved ` +
	`for a query and decide which to keep and which to delete. Delete a fragment only ` +
	`when it is redundant with a kept fragment or clearly superseded by a newer one. ` +
	`When in doubt, keep. Respond with JSON only.`

// AnthropicCurator はAnthropic Messages APIでキュレーション判断を行う
type AnthropicCurator struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicCurator はAnthropicCuratorを作成する
// modelが空の場合はデフォルトモデルを使用する。
func NewAnthropicCurator(apiKey, model string) *AnthropicCurator {
	if model == "" {
		model = defaultCuratorModel
	}
	return &AnthropicCurator{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 1024,
	}
}

// Curate は候補群に対するkeep/delete判断を取得する
func (c *AnthropicCurator) Curate(ctx context.Context, query string, candidates []Candidate) (*Decision, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: curatorSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildCurationPrompt(query, candidates))),
		},
		// 判断を安定させるため温度は低く保つ
		Temperature: anthropic.Float(0.2),
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("curator request failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	decision, err := parseDecision(text)
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// buildCurationPrompt はクエリと候補一覧からユーザープロンプトを構築する
func buildCurationPrompt(query string, candidates []Candidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Query: %s\n\nRetrieved fragments:\n", query)
	for i, cand := range candidates {
		fmt.Fprintf(&b, "%d. id=%s created=%s similarity=%.3f category=%s\n   %s\n",
			i+1, cand.ID, cand.CreatedAt.UTC().Format("2006-01-02"),
			cand.Similarity, cand.Category, cand.Content)
	}

	b.WriteString(`
Respond with a JSON object of this exact shape:
{
  "fragments_to_keep": ["id", ...],
  "fragments_to_delete": ["id", ...],
  "reasoning": "short explanation",
  "conflicts_detected": false,
  "redundancies_detected": false
}`)

	return b.String()
}

// parseDecision は応答テキストからDecisionを抽出する
// コードフェンスや前後の説明文が混ざっていても最初のJSONオブジェクトを拾う。
func parseDecision(text string) (*Decision, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedDecision)
	}

	var decision Decision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	return &decision, nil
}

// extractJSON はテキスト中の最初のJSONオブジェクトを切り出す
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	// ```json ... ``` フェンスを剥がす
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
