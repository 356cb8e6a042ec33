package bot

import (
	"context"

	"github.com/studiokit/prodflow/internal/discord"
	"github.com/studiokit/prodflow/internal/prodflow"
)

// RestChatClient adapts the REST client to the service's chat boundary.
type RestChatClient struct {
	Rest *discord.Client
}

var _ prodflow.ChatClient = (*RestChatClient)(nil)

func (c *RestChatClient) CreateThread(ctx context.Context, channelID, name string) (string, error) {
	return c.Rest.CreateThread(ctx, channelID, name)
}

func (c *RestChatClient) SendMessage(ctx context.Context, channelID, content string) error {
	return c.Rest.CreateMessage(ctx, channelID, content)
}

func (c *RestChatClient) SendButton(ctx context.Context, channelID, content, customID, label string) error {
	rows := []discord.ComponentRow{{
		Type: discord.ComponentTypeActionRow,
		Components: []discord.Component{{
			Type:     discord.ComponentTypeButton,
			Style:    discord.ButtonStylePrimary,
			CustomID: customID,
			Label:    label,
		}},
	}}
	return c.Rest.CreateComponentMessage(ctx, channelID, content, rows)
}

func (c *RestChatClient) SendSelect(ctx context.Context, channelID string, prompt prodflow.SelectPrompt) error {
	options := make([]discord.SelectOption, 0, len(prompt.Options))
	for _, option := range prompt.Options {
		options = append(options, discord.SelectOption{Label: option.Label, Value: option.Value})
	}
	rows := []discord.ComponentRow{{
		Type: discord.ComponentTypeActionRow,
		Components: []discord.Component{{
			Type:        discord.ComponentTypeStringSelect,
			CustomID:    prompt.CustomID,
			Placeholder: prompt.Placeholder,
			Options:     options,
		}},
	}}
	return c.Rest.CreateComponentMessage(ctx, channelID, prompt.Content, rows)
}
