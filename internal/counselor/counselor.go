// Package counselor produces short supportive advice for journal entries and
// answers the counselor chat, backed by a hosted LLM.
package counselor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"parentseed/internal/emotion"
)

const (
	adviceMaxTokens = 256
	chatMaxTokens   = 512
)

// Provider is a single-prompt text completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Message is one turn of the counselor chat.
type Message struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// UnavailableReply is sent when the provider answers with no text.
const UnavailableReply = "申し訳ありません。現在AIカウンセラーが応答できません。"

const defaultAdvice = "今日も育児お疲れさまでした。あなたの努力は必ず子どもに伝わっています。"

var fallbackAdvice = map[emotion.Tag]string{
	emotion.Anxiety:   "不安な気持ちは育児において自然な反応です。深呼吸をして、一歩ずつ進んでいきましょう。",
	emotion.Anger:     "怒りを感じた時は、まず5秒数えてから行動してみてください。感情をコントロールできている証拠です。",
	emotion.Fatigue:   "疲れている時は休息が必要です。可能な時に短時間でも休んで、自分を労わってください。",
	emotion.Guilt:     "完璧な親はいません。あなたが子どもを愛していることが最も大切です。",
	emotion.Joy:       "この喜びの瞬間を心に刻んでください。困難な時の支えになります。",
	emotion.Affection: "愛情を感じられることは素晴らしいことです。その気持ちを大切にしてください。",
}

// FallbackAdvice returns the fixed advice for the first emotion, or a generic
// message when none is mapped.
func FallbackAdvice(tags []emotion.Tag) string {
	if len(tags) > 0 {
		if s, ok := fallbackAdvice[tags[0]]; ok {
			return s
		}
	}
	return defaultAdvice
}

type Counselor struct {
	provider Provider
	logger   *zap.Logger
}

func New(p Provider, logger *zap.Logger) *Counselor {
	return &Counselor{provider: p, logger: logger}
}

// Advise returns one short piece of advice for an entry. It never fails:
// provider errors and empty replies degrade to FallbackAdvice.
func (c *Counselor) Advise(ctx context.Context, tags []emotion.Tag, content string) string {
	text, err := c.provider.Complete(ctx, advicePrompt(tags, content), adviceMaxTokens)
	if err != nil {
		c.logger.Warn("advice generation failed, using fallback",
			zap.String("provider", c.provider.Name()), zap.Error(err))
		return FallbackAdvice(tags)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackAdvice(tags)
	}
	return text
}

// Chat answers message given the prior conversation.
func (c *Counselor) Chat(ctx context.Context, message string, history []Message) (string, error) {
	text, err := c.provider.Complete(ctx, chatPrompt(message, history), chatMaxTokens)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.provider.Name(), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return UnavailableReply, nil
	}
	return text, nil
}

func labels(tags []emotion.Tag) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Label()
	}
	return strings.Join(out, ", ")
}

func advicePrompt(tags []emotion.Tag, content string) string {
	var sb strings.Builder
	sb.WriteString("あなたは育児やコーチングのプロフェッショナルです。新米親の感情に寄り添い、温かく具体的なアドバイスを提供してください。\n\n")
	sb.WriteString("感情: ")
	sb.WriteString(labels(tags))
	sb.WriteString("\n内容: ")
	sb.WriteString(content)
	sb.WriteString(`

以下の点を考慮してアドバイスを作成してください：
- 感情を否定せず、受け入れる姿勢を示す
- 具体的で実践可能なアドバイスを含める
- 育児の大変さを理解していることを示す
- 希望や励ましの要素を含める
- 50文字以内で簡潔にまとめる

アドバイス:`)
	return sb.String()
}

func chatPrompt(message string, history []Message) string {
	var sb strings.Builder
	sb.WriteString(`あなたは育児専門のAIカウンセラーです。0〜3歳の子どもを育てる新米親の相談に乗り、感情的なサポートを日本語で提供します。

【会話の特徴】
- 共感的で温かい口調
- 判断せず、受け入れる姿勢
- 具体的で実践可能なアドバイス
- 感情をコントロールするためのコーチングを行ってください
- 育児の大変さを理解していることを示す
- 必要に応じて専門家への相談を勧める
- 危険な状況では適切な機関への連絡を促す

【これまでの会話】
`)
	for _, m := range history {
		if m.Role == "user" {
			sb.WriteString("ユーザー: ")
		} else {
			sb.WriteString("AI: ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\n【新しい相談内容】\n")
	sb.WriteString(message)
	sb.WriteString("\n\n親身になって、具体的で役立つ回答をしてください。\n回答に関しては、100文字程度に簡潔にまとめてください。\n")
	return sb.String()
}
