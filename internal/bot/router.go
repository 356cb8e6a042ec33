package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/studiokit/prodflow/internal/discord"
	"github.com/studiokit/prodflow/internal/prodflow"
)

// Slash command names.
const (
	CommandSetupButton       = "setup-button"
	CommandSetVideoStatus    = "set-video-status"
	CommandSetThumbStatus    = "set-thumbnail-status"
	CommandMarkReviewed      = "mark-reviewed"
	CommandListNotifications = "list-notifications"
)

const handlerTimeout = 30 * time.Second

type Options struct {
	Service *prodflow.Service
	Rest    *discord.Client
	Intake  *prodflow.UploadIntake
	Logf    func(format string, v ...any)
}

// Router translates gateway events into service calls. It implements
// discord.EventHandler.
type Router struct {
	service *prodflow.Service
	rest    *discord.Client
	intake  *prodflow.UploadIntake
	logf    func(format string, v ...any)

	mu      sync.Mutex
	threads map[string]*discord.Channel
}

func NewRouter(opts Options) *Router {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Router{
		service: opts.Service,
		rest:    opts.Rest,
		intake:  opts.Intake,
		logf:    logf,
		threads: map[string]*discord.Channel{},
	}
}

func (r *Router) HandleInteraction(ctx context.Context, interaction *discord.Interaction) {
	if interaction == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	ack := &interactionAck{rest: r.rest, interactionID: interaction.ID, token: interaction.Token, logf: r.logf}

	var err error
	switch interaction.Type {
	case discord.InteractionTypePing:
		err = r.rest.RespondPong(ctx, interaction.ID, interaction.Token)
	case discord.InteractionTypeCommand:
		err = r.handleCommand(ctx, interaction, ack)
	case discord.InteractionTypeComponent:
		err = r.handleComponent(ctx, interaction, ack)
	case discord.InteractionTypeModalSubmit:
		err = r.handleModalSubmit(ctx, interaction, ack)
	default:
		return
	}
	if err != nil && !errors.Is(err, discord.ErrAlreadyAcknowledged) {
		r.logf("interaction %s: %v", interaction.ID, err)
	}
}

func (r *Router) handleCommand(ctx context.Context, interaction *discord.Interaction, ack prodflow.Ack) error {
	if interaction.Data == nil {
		return nil
	}
	threadID, parentChannelID, threadName := r.threadContext(interaction)
	switch interaction.Data.Name {
	case CommandSetupButton:
		return r.service.HandleSetupButton(ctx, interaction.ChannelID, ack)
	case CommandSetVideoStatus:
		return r.service.HandleSetStatus(ctx, threadID, parentChannelID, threadName,
			prodflow.KindVideo, commandOption(interaction.Data, "status"), ack)
	case CommandSetThumbStatus:
		return r.service.HandleSetStatus(ctx, threadID, parentChannelID, threadName,
			prodflow.KindThumbnail, commandOption(interaction.Data, "status"), ack)
	case CommandMarkReviewed:
		return r.service.HandleMarkReviewed(ctx, threadID, parentChannelID, threadName, ack)
	case CommandListNotifications:
		return r.service.HandleListNotifications(ctx, threadID, parentChannelID, ack)
	}
	return ack.Reply(ctx, "Unknown command.", true)
}

func (r *Router) handleComponent(ctx context.Context, interaction *discord.Interaction, ack prodflow.Ack) error {
	data := interaction.Data
	if data == nil {
		return nil
	}
	if data.CustomID == prodflow.OpenThreadButtonID {
		return r.service.HandleOpenThreadModal(ctx, ack)
	}
	value := ""
	if len(data.Values) > 0 {
		value = data.Values[0]
	}
	return r.service.HandleSelect(ctx, data.CustomID, value, ack)
}

func (r *Router) handleModalSubmit(ctx context.Context, interaction *discord.Interaction, ack *interactionAck) error {
	data := interaction.Data
	if data == nil || data.CustomID != prodflow.CreateThreadModalID {
		return nil
	}
	// Thread creation runs several sheet round-trips, too slow for the
	// callback window.
	if err := ack.Defer(ctx, true); err != nil {
		return err
	}
	title := data.ModalValue(prodflow.ModalTitleInputID)
	return r.service.HandleCreateThread(ctx, interaction.ChannelID, title, ack)
}

func (r *Router) HandleThreadCreate(ctx context.Context, thread *discord.Channel) {
	if thread == nil || thread.ParentID == "" {
		return
	}
	r.rememberThread(thread)
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	if err := r.service.HandleThreadCreated(ctx, thread.ParentID, thread.ID, thread.Name); err != nil {
		r.logf("thread %s: %v", thread.ID, err)
	}
}

func (r *Router) HandleMessageCreate(_ context.Context, message *discord.Message) {
	if r.intake == nil || message == nil {
		return
	}
	if message.Author != nil && message.Author.Bot {
		return
	}
	if _, ok := prodflow.FindTransferLink(message.Content); !ok {
		return
	}
	// The upload streams the whole delivery and must not stall the gateway
	// read loop. It outlives the session, so the context is not inherited.
	go r.runUploadIntake(message)
}

func (r *Router) runUploadIntake(message *discord.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	thread := r.lookupThread(ctx, message.ChannelID)
	if thread == nil || thread.ParentID == "" {
		return
	}
	result, err := r.intake.HandleMessage(ctx, thread.ParentID, thread.Name, message.Content)
	if err != nil {
		r.logf("upload intake for thread %s: %v", message.ChannelID, err)
		if sendErr := r.rest.CreateMessage(ctx, message.ChannelID, "The upload to the archive failed."); sendErr != nil {
			r.logf("upload failure notice: %v", sendErr)
		}
		return
	}
	if result == nil {
		return
	}
	if err := r.rest.CreateMessage(ctx, message.ChannelID, "Uploaded the delivery to the "+result.Year+" archive folder."); err != nil {
		r.logf("upload notice: %v", err)
	}
}

// threadContext resolves where a command was invoked. Outside a thread the
// thread fields come back empty and the channel stands for itself.
func (r *Router) threadContext(interaction *discord.Interaction) (threadID, parentChannelID, threadName string) {
	channel := interaction.Channel
	if channel == nil || channel.ParentID == "" {
		return interaction.ChannelID, interaction.ChannelID, ""
	}
	return channel.ID, channel.ParentID, channel.Name
}

func (r *Router) rememberThread(thread *discord.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[thread.ID] = thread
}

func (r *Router) lookupThread(ctx context.Context, channelID string) *discord.Channel {
	r.mu.Lock()
	cached := r.threads[channelID]
	r.mu.Unlock()
	if cached != nil {
		return cached
	}
	channel, err := r.rest.GetChannel(ctx, channelID)
	if err != nil {
		r.logf("channel lookup %s: %v", channelID, err)
		return nil
	}
	if channel.ParentID != "" {
		r.rememberThread(channel)
	}
	return channel
}

func commandOption(data *discord.InteractionData, name string) string {
	for _, option := range data.Options {
		if option.Name == name {
			return strings.TrimSpace(option.StringValue())
		}
	}
	return ""
}
