package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/studiokit/prodflow/internal/bot"
	"github.com/studiokit/prodflow/internal/discord"
)

// Registers the guild command set. Run once per guild after deploying a
// change to the command definitions.
func main() {
	botToken := strings.TrimSpace(os.Getenv("PRODFLOW_DISCORD_TOKEN"))
	if botToken == "" {
		log.Fatal("PRODFLOW_DISCORD_TOKEN is required")
	}
	appID := strings.TrimSpace(os.Getenv("PRODFLOW_DISCORD_APP_ID"))
	if appID == "" {
		log.Fatal("PRODFLOW_DISCORD_APP_ID is required")
	}
	guildID := strings.TrimSpace(os.Getenv("PRODFLOW_DISCORD_GUILD_ID"))
	if guildID == "" {
		log.Fatal("PRODFLOW_DISCORD_GUILD_ID is required")
	}

	client := discord.NewClient(discord.ClientOptions{
		BotToken:  botToken,
		AppID:     appID,
		UserAgent: "prodflow",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	commands := bot.CommandDefinitions()
	if err := client.RegisterGuildCommands(ctx, guildID, commands); err != nil {
		log.Fatalf("failed to register commands: %v", err)
	}
	log.Printf("registered %d commands for guild %s", len(commands), guildID)
}
