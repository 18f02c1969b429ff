// Package prompt assembles the message list sent upstream.
//
// The gateway owns the system prompt: caller-supplied system messages are
// stripped and exactly one operator-controlled system message is prepended.
// Assembly works on the raw JSON body so unknown caller fields (max_tokens,
// top_p, tool definitions, ...) are forwarded untouched.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RoleSystem is the system message role.
const RoleSystem = "system"

type systemMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Assemble rewrites body so that messages[0] is the single system message and
// every caller-sent system message is removed. The system content is the
// body's non-empty system_prompt field when present, else defaultPrompt.
// The gateway-only system_prompt field is dropped from the result. Relative
// order of the remaining messages is preserved.
func Assemble(body []byte, defaultPrompt string) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("assemble: request body is not valid JSON")
	}

	content := defaultPrompt
	if override := strings.TrimSpace(gjson.GetBytes(body, "system_prompt").String()); override != "" {
		content = override
	}

	sys, err := json.Marshal(systemMessage{Role: RoleSystem, Content: content})
	if err != nil {
		return nil, fmt.Errorf("assemble: marshal system message: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(sys)
	for _, msg := range gjson.GetBytes(body, "messages").Array() {
		if msg.Get("role").String() == RoleSystem {
			continue
		}
		buf.WriteByte(',')
		buf.WriteString(msg.Raw)
	}
	buf.WriteByte(']')

	out, err := sjson.SetRawBytes(body, "messages", buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("assemble: set messages: %w", err)
	}
	out, err = sjson.DeleteBytes(out, "system_prompt")
	if err != nil {
		return nil, fmt.Errorf("assemble: drop system_prompt: %w", err)
	}
	return out, nil
}
