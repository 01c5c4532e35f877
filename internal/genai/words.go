package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/openai/openai-go/v3"
)

// Word is one generated vocabulary entry.
type Word struct {
	Word               string `json:"word"`
	Pronunciation      string `json:"pronunciation"`
	PartOfSpeech       string `json:"part_of_speech"`
	DefinitionEn       string `json:"definition_en"`
	DefinitionZh       string `json:"definition_zh"`
	ExampleSentence    string `json:"example_sentence"`
	ExampleTranslation string `json:"example_translation"`
}

// Difficulty is a vocabulary difficulty level.
type Difficulty struct {
	ID     int
	Name   string
	prompt string
}

var difficulties = []Difficulty{
	{1, "初級 (Basic)", "請選擇適合初學者的基礎英文單字，常見於日常對話中的簡單詞彙（如CEFR A1-A2級別）"},
	{2, "中級 (Intermediate)", "請選擇難度符合台灣常見的「三千單」詞彙等級（如全民英檢中級、CEFR B1-B2級）的單字，應為日常生活中常見且實用的詞彙"},
	{3, "高級 (Advanced)", "請選擇較具挑戰性的高級英文單字，適合進階學習者（如CEFR C1-C2級別），包含學術或專業領域常用詞彙"},
}

// Difficulties returns the selectable levels in menu order.
func Difficulties() []Difficulty {
	out := make([]Difficulty, len(difficulties))
	copy(out, difficulties)
	return out
}

// DifficultyName returns the display name for a level ID, or "" if unknown.
func DifficultyName(id int) string {
	for _, d := range difficulties {
		if d.ID == id {
			return d.Name
		}
	}
	return ""
}

// ValidDifficulty reports whether id is a selectable level.
func ValidDifficulty(id int) bool {
	return DifficultyName(id) != ""
}

const wordPromptFormat = `請提供一個英文單字的學習內容，包含以下欄位：

1. 單字 (word)
2. 發音（使用台灣常見的 KK 音標）(pronunciation)
3. 詞性 (part_of_speech)
4. 英文解釋 (definition_en)
5. 中文解釋 (definition_zh)
6. 例句 (example_sentence)
7. 例句翻譯 (example_translation)

%s

請以 **純 JSON 格式** 回覆，**不要添加多餘說明或文字**，並請確認所有資訊準確無誤。

以下為格式範例：
{
  "word": "negotiate",
  "pronunciation": "/nɪˈɡoʊʃiˌeɪt/",
  "part_of_speech": "verb",
  "definition_en": "to discuss something formally in order to reach an agreement",
  "definition_zh": "協商、談判",
  "example_sentence": "We need to negotiate a better deal with the supplier.",
  "example_translation": "我們需要與供應商協商更好的條件。"
}`

// jsonPattern pulls a JSON object out of a response that may carry
// surrounding prose or code fences.
var jsonPattern = regexp.MustCompile(`(?s)\{.*\}`)

// GenerateWord produces one vocabulary entry at the given difficulty.
// Generation is stateless; each word is an independent completion. A
// response that cannot be parsed falls back to a fixed word so pushes
// never go out empty.
func (c *Client) GenerateWord(ctx context.Context, difficultyID int) (Word, error) {
	if c == nil {
		return Word{}, ErrDisabled
	}

	var prompt string
	for _, d := range difficulties {
		if d.ID == difficultyID {
			prompt = d.prompt
			break
		}
	}
	if prompt == "" {
		return Word{}, fmt.Errorf("unknown difficulty %d", difficultyID)
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(wordPromptFormat, prompt)),
		},
	})
	duration := time.Since(start)

	if err != nil {
		c.recordRequest("words", "error", duration.Seconds())
		return Word{}, fmt.Errorf("word generation failed: %w", err)
	}
	c.recordRequest("words", "success", duration.Seconds())

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	word, ok := parseWord(content)
	if !ok {
		c.log.Warnf("word response not parseable, using fallback word")
		return fallbackWord(), nil
	}
	return word, nil
}

// parseWord decodes a vocabulary entry from raw model output.
func parseWord(content string) (Word, bool) {
	var word Word
	if err := json.Unmarshal([]byte(content), &word); err != nil {
		match := jsonPattern.FindString(content)
		if match == "" {
			return Word{}, false
		}
		if err := json.Unmarshal([]byte(match), &word); err != nil {
			return Word{}, false
		}
	}
	if word.Word == "" {
		return Word{}, false
	}
	return word, true
}

func fallbackWord() Word {
	return Word{
		Word:               "fallback",
		Pronunciation:      "/ˈfɔːlbæk/",
		PartOfSpeech:       "noun",
		DefinitionEn:       "something or someone to turn to in case of failure or emergency",
		DefinitionZh:       "備用方案、後備選擇",
		ExampleSentence:    "We need a fallback plan in case this doesn't work.",
		ExampleTranslation: "我們需要一個備用計劃，以防這個不起作用。",
	}
}

// AudioURL builds a Google Translate TTS link for English text.
func AudioURL(text string) string {
	if text == "" {
		return ""
	}
	return "https://translate.google.com/translate_tts?ie=UTF-8&tl=en&client=tw-ob&q=" + url.QueryEscape(text)
}
