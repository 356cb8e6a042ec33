package bot

import (
	"context"
	"errors"

	"github.com/studiokit/prodflow/internal/discord"
	"github.com/studiokit/prodflow/internal/prodflow"
)

// interactionAck answers one interaction through the REST callback endpoint.
// A raced duplicate callback is treated as already answered, not as a
// failure.
type interactionAck struct {
	rest          *discord.Client
	interactionID string
	token         string
	logf          func(format string, v ...any)
	deferred      bool
}

var _ prodflow.Ack = (*interactionAck)(nil)

// Defer buys time past the callback window. Replies issued afterwards land
// as edits of the placeholder; the ephemerality chosen here is final.
func (a *interactionAck) Defer(ctx context.Context, ephemeral bool) error {
	err := a.rest.RespondDeferred(ctx, a.interactionID, a.token, ephemeral)
	if err != nil && !errors.Is(err, discord.ErrAlreadyAcknowledged) {
		return err
	}
	a.deferred = true
	return nil
}

func (a *interactionAck) Reply(ctx context.Context, content string, ephemeral bool) error {
	if a.deferred {
		return a.rest.EditOriginalResponse(ctx, a.token, content)
	}
	err := a.rest.RespondMessage(ctx, a.interactionID, a.token, content, ephemeral)
	if errors.Is(err, discord.ErrAlreadyAcknowledged) {
		a.logf("interaction %s: reply raced a prior ack", a.interactionID)
		return nil
	}
	return err
}

func (a *interactionAck) Update(ctx context.Context, content string) error {
	err := a.rest.RespondUpdate(ctx, a.interactionID, a.token, content)
	if errors.Is(err, discord.ErrAlreadyAcknowledged) {
		a.logf("interaction %s: update raced a prior ack", a.interactionID)
		return nil
	}
	return err
}

func (a *interactionAck) ShowModal(ctx context.Context, modal prodflow.ModalPrompt) error {
	required := true
	rows := []discord.ComponentRow{{
		Type: discord.ComponentTypeActionRow,
		Components: []discord.Component{{
			Type:     discord.ComponentTypeTextInput,
			Style:    discord.TextInputStyleShort,
			CustomID: modal.InputCustomID,
			Label:    modal.InputLabel,
			Required: &required,
		}},
	}}
	return a.rest.RespondModal(ctx, a.interactionID, a.token, modal.CustomID, modal.Title, rows)
}
