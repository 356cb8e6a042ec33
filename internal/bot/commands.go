package bot

import "github.com/studiokit/prodflow/internal/discord"

// CommandDefinitions is the guild command set the engine answers to.
func CommandDefinitions() []discord.ApplicationCommand {
	statusChoices := []discord.CommandChoice{
		{Name: "Draft submitted", Value: "draft"},
		{Name: "Revision submitted", Value: "revision"},
		{Name: "Delivered", Value: "delivered"},
	}
	statusOption := discord.ApplicationCommandOption{
		Type:        discord.CommandOptionTypeString,
		Name:        "status",
		Description: "New status for the deliverable",
		Required:    true,
		Choices:     statusChoices,
	}
	return []discord.ApplicationCommand{
		{
			Name:        CommandSetupButton,
			Description: "Post the project-thread creation button in this channel",
		},
		{
			Name:        CommandSetVideoStatus,
			Description: "Set the video status for this project thread",
			Options:     []discord.ApplicationCommandOption{statusOption},
		},
		{
			Name:        CommandSetThumbStatus,
			Description: "Set the thumbnail status for this project thread",
			Options:     []discord.ApplicationCommandOption{statusOption},
		},
		{
			Name:        CommandMarkReviewed,
			Description: "Mark this project thread as reviewed",
		},
		{
			Name:        CommandListNotifications,
			Description: "List the status of every project in this workflow",
		},
	}
}
