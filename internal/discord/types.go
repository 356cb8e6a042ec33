package discord

import "encoding/json"

// Interaction types.
const (
	InteractionTypePing        = 1
	InteractionTypeCommand     = 2
	InteractionTypeComponent   = 3
	InteractionTypeModalSubmit = 5

	interactionResponsePong            = 1
	interactionResponseMessage         = 4
	interactionResponseDeferredMessage = 5
	interactionResponseUpdate          = 7
	interactionResponseModal           = 9
)

// Component types inside message payloads.
const (
	ComponentTypeActionRow    = 1
	ComponentTypeButton       = 2
	ComponentTypeStringSelect = 3
	ComponentTypeTextInput    = 4
)

const (
	ButtonStylePrimary = 1

	TextInputStyleShort = 1

	MessageFlagEphemeral = 64

	ChannelTypePublicThread = 11
)

type Interaction struct {
	ID        string           `json:"id"`
	Type      int              `json:"type"`
	Token     string           `json:"token"`
	ChannelID string           `json:"channel_id"`
	GuildID   string           `json:"guild_id"`
	Channel   *Channel         `json:"channel"`
	Member    *Member          `json:"member"`
	Data      *InteractionData `json:"data"`
}

type InteractionData struct {
	// Command fields.
	Name    string          `json:"name"`
	Options []CommandOption `json:"options"`
	// Component and modal fields.
	CustomID      string         `json:"custom_id"`
	ComponentType int            `json:"component_type"`
	Values        []string       `json:"values"`
	Components    []ComponentRow `json:"components"`
}

type CommandOption struct {
	Name  string          `json:"name"`
	Type  int             `json:"type"`
	Value json.RawMessage `json:"value"`
}

// StringValue decodes the option value as a string, tolerating numeric
// payloads.
func (o CommandOption) StringValue() string {
	var s string
	if json.Unmarshal(o.Value, &s) == nil {
		return s
	}
	return string(o.Value)
}

type ComponentRow struct {
	Type       int         `json:"type"`
	Components []Component `json:"components"`
}

type Component struct {
	Type        int            `json:"type"`
	Style       int            `json:"style,omitempty"`
	Label       string         `json:"label,omitempty"`
	CustomID    string         `json:"custom_id,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Value       string         `json:"value,omitempty"`
	Required    *bool          `json:"required,omitempty"`
	Options     []SelectOption `json:"options,omitempty"`
}

type SelectOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Channel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
	GuildID  string `json:"guild_id"`
}

type Member struct {
	User *User `json:"user"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type Message struct {
	ID        string   `json:"id"`
	ChannelID string   `json:"channel_id"`
	GuildID   string   `json:"guild_id"`
	Content   string   `json:"content"`
	Author    *User    `json:"author"`
	Flags     int      `json:"flags,omitempty"`
	Thread    *Channel `json:"thread,omitempty"`
}

// ModalValue returns the submitted value of a text input inside a modal
// payload.
func (d *InteractionData) ModalValue(customID string) string {
	if d == nil {
		return ""
	}
	for _, row := range d.Components {
		for _, component := range row.Components {
			if component.CustomID == customID {
				return component.Value
			}
		}
	}
	return ""
}

type interactionResponse struct {
	Type int                      `json:"type"`
	Data *interactionResponseData `json:"data,omitempty"`
}

type interactionResponseData struct {
	Content    string         `json:"content,omitempty"`
	Flags      int            `json:"flags,omitempty"`
	CustomID   string         `json:"custom_id,omitempty"`
	Title      string         `json:"title,omitempty"`
	// No omitempty: an explicit empty array is what strips components
	// from an updated message.
	Components []ComponentRow `json:"components"`
}

type ApplicationCommand struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

type ApplicationCommandOption struct {
	Type         int                        `json:"type"`
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Required     bool                       `json:"required,omitempty"`
	Choices      []CommandChoice            `json:"choices,omitempty"`
	ChannelTypes []int                      `json:"channel_types,omitempty"`
	Options      []ApplicationCommandOption `json:"options,omitempty"`
}

type CommandChoice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Command option types.
const (
	CommandOptionTypeString = 3
)
