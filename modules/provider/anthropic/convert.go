package anthropic

import (
	"cmp"
	"log/slog"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/pkg/conversation"
)

// maxTemperature is the Messages API ceiling. Sessions allow up to 2.
const maxTemperature = 1.0

// messageParams builds Messages API parameters. Leading developer messages
// become the system prompt; a request-level model wins over the config.
func messageParams(req provider.Request, cfg *Config, logger *slog.Logger) sdkanthropic.MessageNewParams {
	system, turns := splitPreamble(req.Messages)
	return sdkanthropic.MessageNewParams{
		Model:       sdkanthropic.Model(cmp.Or(req.Model, cfg.Model)),
		System:      system,
		Messages:    turnParams(turns, logger),
		MaxTokens:   int64(cfg.MaxTokens),
		Temperature: sdkanthropic.Float(min(max(req.Temperature, 0), maxTemperature)),
	}
}

func splitPreamble(msgs []conversation.Message) ([]sdkanthropic.TextBlockParam, []conversation.Message) {
	var system []sdkanthropic.TextBlockParam
	for len(msgs) > 0 && msgs[0].Role == conversation.RoleDeveloper {
		system = append(system, sdkanthropic.TextBlockParam{Text: msgs[0].Content})
		msgs = msgs[1:]
	}
	return system, msgs
}

// turnParams maps user and assistant turns. A developer message after the
// first turn has no inline equivalent and is dropped.
func turnParams(msgs []conversation.Message, logger *slog.Logger) []sdkanthropic.MessageParam {
	out := make([]sdkanthropic.MessageParam, 0, len(msgs))
	for i, m := range msgs {
		block := sdkanthropic.NewTextBlock(m.Content)
		switch m.Role {
		case conversation.RoleUser:
			out = append(out, sdkanthropic.NewUserMessage(block))
		case conversation.RoleAssistant:
			out = append(out, sdkanthropic.NewAssistantMessage(block))
		default:
			if logger != nil {
				logger.Warn("dropping message with no Messages API role", "index", i, "role", m.Role)
			}
		}
	}
	return out
}
