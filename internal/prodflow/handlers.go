package prodflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	OpenThreadButtonID  = "open_thread_modal"
	CreateThreadModalID = "create_thread_modal"
	ModalTitleInputID   = "title"
)

const maxSelectOptions = 25

type SelectOption struct {
	Label string
	Value string
}

type SelectPrompt struct {
	Content     string
	CustomID    string
	Placeholder string
	Options     []SelectOption
}

type ModalPrompt struct {
	CustomID      string
	Title         string
	InputCustomID string
	InputLabel    string
}

// ChatClient is the outbound boundary to the chat platform.
type ChatClient interface {
	CreateThread(ctx context.Context, channelID, name string) (string, error)
	SendMessage(ctx context.Context, channelID, content string) error
	SendButton(ctx context.Context, channelID, content, customID, label string) error
	SendSelect(ctx context.Context, channelID string, prompt SelectPrompt) error
}

// Ack answers the interaction currently being handled. Every handler path
// must end in exactly one Ack call: an interaction left unacknowledged is a
// platform fault class of its own.
type Ack interface {
	Reply(ctx context.Context, content string, ephemeral bool) error
	Update(ctx context.Context, content string) error
	ShowModal(ctx context.Context, modal ModalPrompt) error
}

type ServiceOptions struct {
	Registry          *Registry
	Sheets            SheetClient
	Chat              ChatClient
	Ledger            Ledger
	Notifier          Notifier
	NotifyDestination string
	Now               func() time.Time
	Logf              func(format string, v ...any)
}

type Service struct {
	registry   *Registry
	sheets     SheetClient
	chat       ChatClient
	writer     *RecordWriter
	ledger     Ledger
	notifier   Notifier
	notifyDest string
	locks      *keyedMutex
	now        func() time.Time
	logf       func(format string, v ...any)
}

func NewService(opts ServiceOptions) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = NewInMemoryLedger()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Service{
		registry:   opts.Registry,
		sheets:     opts.Sheets,
		chat:       opts.Chat,
		writer:     NewRecordWriter(opts.Sheets),
		ledger:     ledger,
		notifier:   notifier,
		notifyDest: strings.TrimSpace(opts.NotifyDestination),
		locks:      newKeyedMutex(),
		now:        now,
		logf:       logf,
	}
}

func (s *Service) Ledger() Ledger {
	return s.ledger
}

// HandleSetupButton posts the thread-creation button into the invoking
// channel.
func (s *Service) HandleSetupButton(ctx context.Context, channelID string, ack Ack) error {
	if _, ok := s.registry.Resolve(channelID); !ok {
		_ = ack.Reply(ctx, "This channel is not bound to a workflow.", true)
		return ErrUnboundChannel
	}
	err := s.chat.SendButton(ctx, channelID, "Start a new project here:", OpenThreadButtonID, "Create project thread")
	if err != nil {
		_ = ack.Reply(ctx, "Could not post the button.", true)
		return err
	}
	return ack.Reply(ctx, "Button posted.", true)
}

// HandleOpenThreadModal shows the title modal in response to the button.
func (s *Service) HandleOpenThreadModal(ctx context.Context, ack Ack) error {
	return ack.ShowModal(ctx, ModalPrompt{
		CustomID:      CreateThreadModalID,
		Title:         "Create project thread",
		InputCustomID: ModalTitleInputID,
		InputLabel:    "Video title",
	})
}

// HandleCreateThread runs the creation flow: allocate row and ordinal,
// create the thread, write the record fields (mirrored to the aggregate
// record when the category has one), then post the follow-up selects
// carrying interaction tokens. Allocation and write run under a per-store
// lock so two concurrent creations cannot claim the same row.
func (s *Service) HandleCreateThread(ctx context.Context, channelID, title string, ack Ack) error {
	binding, ok := s.registry.Resolve(channelID)
	if !ok {
		_ = ack.Reply(ctx, "This channel is not bound to a workflow.", true)
		return ErrUnboundChannel
	}
	title = strings.TrimSpace(title)
	if title == "" {
		_ = ack.Reply(ctx, "A title is required.", true)
		return ErrInvalidInput
	}
	cfg := binding.Config
	record := cfg.RecordNames.ForType(binding.Type)
	ordinalColumn := OrdinalColumn(binding.Type)

	unlock := s.locks.Lock("alloc/" + cfg.StoreID)
	defer unlock()

	rowIndex, err := NextAvailableRow(ctx, s.sheets, cfg.StoreID, record, ordinalColumn)
	if err != nil {
		_ = ack.Reply(ctx, "The production sheet is unavailable right now.", true)
		return err
	}
	ordinal, err := NextOrdinal(ctx, s.sheets, cfg.StoreID, record, ordinalColumn)
	if err != nil {
		_ = ack.Reply(ctx, "The production sheet is unavailable right now.", true)
		return err
	}
	coord := RecordCoordinate{
		StoreID:    cfg.StoreID,
		RecordName: record,
		Type:       binding.Type,
		RowIndex:   rowIndex,
		Ordinal:    ordinal,
	}
	threadOrdinal := ordinal
	if cfg.HasAggregate {
		coord.AggregateRecord = cfg.RecordNames.Overall
		coord.AggregateRowIndex, err = NextAvailableRow(ctx, s.sheets, cfg.StoreID, coord.AggregateRecord, aggregateOrdinalColumn)
		if err != nil {
			_ = ack.Reply(ctx, "The production sheet is unavailable right now.", true)
			return err
		}
		coord.AggregateOrdinal, err = NextOrdinal(ctx, s.sheets, cfg.StoreID, coord.AggregateRecord, aggregateOrdinalColumn)
		if err != nil {
			_ = ack.Reply(ctx, "The production sheet is unavailable right now.", true)
			return err
		}
		threadOrdinal = coord.AggregateOrdinal
	}

	threadName := fmt.Sprintf("%s_%s", OrdinalToken(threadOrdinal), title)
	threadID, err := s.chat.CreateThread(ctx, channelID, threadName)
	if err != nil {
		_ = ack.Reply(ctx, "Could not create the thread.", true)
		return err
	}
	if sendErr := s.chat.SendMessage(ctx, threadID, threadName); sendErr != nil {
		s.logf("thread %s: bootstrap message failed: %v", threadID, sendErr)
	}

	err = s.writer.WriteFields(ctx, cfg.StoreID, record, rowIndex, map[string]string{
		ordinalColumn:             OrdinalToken(ordinal),
		TitleColumn(binding.Type): title,
	})
	if err != nil {
		_ = ack.Reply(ctx, "The thread was created but the sheet write failed.", true)
		return err
	}
	if cfg.HasAggregate {
		err = s.writer.WriteFields(ctx, cfg.StoreID, coord.AggregateRecord, coord.AggregateRowIndex, map[string]string{
			aggregateOrdinalColumn: OrdinalToken(coord.AggregateOrdinal),
			aggregateTitleColumn:   title,
		})
		if err != nil {
			// The primary write stays committed; there is no rollback pair.
			_ = ack.Reply(ctx, "The thread was created but the overview sheet write failed.", true)
			return err
		}
	}

	if replyErr := ack.Reply(ctx, fmt.Sprintf("Thread %s created.", threadName), true); replyErr != nil {
		s.logf("create thread %s: ack failed: %v", threadID, replyErr)
	}
	s.sendFollowUps(ctx, threadID, coord)
	return nil
}

func (s *Service) sendFollowUps(ctx context.Context, threadID string, coord RecordCoordinate) {
	base := InteractionToken{
		StoreID:             coord.StoreID,
		RecordName:          coord.RecordName,
		AggregateRecordName: coord.AggregateRecord,
		Type:                coord.Type,
		RowIndex:            coord.RowIndex,
		AggregateRowIndex:   coord.AggregateRowIndex,
	}

	dateToken := base
	dateToken.Kind = KindSelectDate
	if err := s.chat.SendSelect(ctx, threadID, SelectPrompt{
		Content:     "Choose the first-draft submission date.",
		CustomID:    dateToken.Encode(),
		Placeholder: "Submission date",
		Options:     dateChoiceOptions(),
	}); err != nil {
		s.logf("thread %s: date prompt failed: %v", threadID, err)
	}

	editorToken := base
	editorToken.Kind = KindSelectEditor
	s.sendAssigneePrompt(ctx, threadID, editorToken, EditorColumn(coord.Type),
		"Choose the editor.", "Editor")

	if coord.Type == TypeLong {
		thumbToken := base
		thumbToken.Kind = KindSelectThumb
		s.sendAssigneePrompt(ctx, threadID, thumbToken, ThumbColumn(coord.Type),
			"Choose the thumbnail assignee.", "Thumbnail assignee")
	}
}

func (s *Service) sendAssigneePrompt(ctx context.Context, threadID string, token InteractionToken, column, content, placeholder string) {
	options, err := s.priorValueOptions(ctx, token.StoreID, token.RecordName, column)
	if err != nil {
		s.logf("thread %s: assignee scan failed: %v", threadID, err)
		return
	}
	if len(options) == 0 {
		if sendErr := s.chat.SendMessage(ctx, threadID, content+" (no prior assignees on the sheet yet; fill the column directly)"); sendErr != nil {
			s.logf("thread %s: assignee note failed: %v", threadID, sendErr)
		}
		return
	}
	if err := s.chat.SendSelect(ctx, threadID, SelectPrompt{
		Content:     content,
		CustomID:    token.Encode(),
		Placeholder: placeholder,
		Options:     options,
	}); err != nil {
		s.logf("thread %s: assignee prompt failed: %v", threadID, err)
	}
}

// priorValueOptions builds select options from the deduplicated prior values
// in a column, capped at the platform's option limit.
func (s *Service) priorValueOptions(ctx context.Context, storeID, record, column string) ([]SelectOption, error) {
	rows, err := scanColumn(ctx, s.sheets, storeID, record, column)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	options := make([]SelectOption, 0, maxSelectOptions)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		value := strings.TrimSpace(row[0])
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		options = append(options, SelectOption{Label: value, Value: value})
		if len(options) == maxSelectOptions {
			break
		}
	}
	return options, nil
}

// HandleSelect routes a follow-up control activation back to its record rows
// via the token carried in the control identifier.
func (s *Service) HandleSelect(ctx context.Context, rawToken, value string, ack Ack) error {
	token, err := DecodeInteractionToken(rawToken)
	if err != nil {
		_ = ack.Reply(ctx, "This control is no longer valid.", true)
		return err
	}
	cfg, ok := s.registry.ResolveStore(token.StoreID)
	if !ok {
		_ = ack.Reply(ctx, "This workflow is no longer configured.", true)
		return fmt.Errorf("%w: store %s not in registry", ErrNotFound, token.StoreID)
	}

	writeValue := value
	confirmation := ""
	switch token.Kind {
	case KindSelectDate:
		date, write, resolveErr := ResolveDateChoice(value, s.now())
		if resolveErr != nil {
			_ = ack.Reply(ctx, "Unknown date choice.", true)
			return resolveErr
		}
		if !write {
			return ack.Update(ctx, "Submission date skipped.")
		}
		writeValue = date
		confirmation = fmt.Sprintf("Submission date set to %s.", date)
	case KindSelectEditor:
		confirmation = fmt.Sprintf("Editor set to %s.", value)
	case KindSelectThumb:
		confirmation = fmt.Sprintf("Thumbnail assignee set to %s.", value)
	}
	if strings.TrimSpace(writeValue) == "" {
		_ = ack.Reply(ctx, "An empty value cannot be recorded.", true)
		return ErrInvalidInput
	}

	column := columnForKind(token.Kind, token.Type)
	err = s.writer.WriteFields(ctx, token.StoreID, token.RecordName, token.RowIndex, map[string]string{column: writeValue})
	if err != nil {
		_ = ack.Reply(ctx, "The sheet write failed.", true)
		return err
	}
	if cfg.HasAggregate && token.AggregateRowIndex > 0 && token.AggregateRecordName != "" {
		aggregateColumn := aggregateColumnForKind(token.Kind)
		err = s.writer.WriteFields(ctx, token.StoreID, token.AggregateRecordName, token.AggregateRowIndex, map[string]string{aggregateColumn: writeValue})
		if err != nil {
			_ = ack.Reply(ctx, "The overview sheet write failed.", true)
			return err
		}
	}
	return ack.Update(ctx, confirmation)
}

// HandleThreadCreated seeds the ledger entry for a newly observed thread
// whose parent channel resolves to a binding. The scheduled post date is
// fetched once; when no row carries the thread's ordinal it stays unset and
// is never retried.
func (s *Service) HandleThreadCreated(ctx context.Context, parentChannelID, threadID, threadName string) error {
	binding, ok := s.registry.Resolve(parentChannelID)
	if !ok {
		return nil
	}
	ordinal, ok := ExtractThreadOrdinal(threadName)
	if !ok {
		return nil
	}

	unlock := s.locks.Lock("thread/" + threadID)
	defer unlock()

	if _, exists := s.ledger.Get(threadID); exists {
		return nil
	}
	postDate := s.lookupScheduledPostDate(ctx, binding, ordinal)
	s.ledger.Upsert(threadID, func(entry *ThreadStatusEntry) {
		entry.Category = binding.Category
		entry.Type = binding.Type
		entry.Ordinal = ordinal
		entry.ScheduledPostDate = postDate
		entry.CreatedAt = s.now()
	})
	return nil
}

// The thread name carries the aggregate ordinal when the category has an
// aggregate record, so the lookup must scan that record's number space.
func (s *Service) lookupScheduledPostDate(ctx context.Context, binding Binding, ordinal int) string {
	cfg := binding.Config
	record := cfg.RecordNames.ForType(binding.Type)
	ordinalColumn := OrdinalColumn(binding.Type)
	dateColumn := DateColumn(binding.Type)
	if cfg.HasAggregate {
		record = cfg.RecordNames.Overall
		ordinalColumn = aggregateOrdinalColumn
		dateColumn = aggregateDateColumn
	}
	rowIndex, err := FindRowByOrdinal(ctx, s.sheets, cfg.StoreID, record, ordinalColumn, ordinal)
	if err != nil {
		s.logf("post date lookup for %s %s: %v", binding.Category, OrdinalToken(ordinal), err)
		return ""
	}
	if rowIndex == 0 {
		return ""
	}
	rows, err := s.sheets.ReadRange(ctx, cfg.StoreID, fmt.Sprintf("%s!%s%d:%s%d", record, dateColumn, rowIndex, dateColumn, rowIndex))
	if err != nil {
		s.logf("post date read for %s %s: %v", binding.Category, OrdinalToken(ordinal), err)
		return ""
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return ""
	}
	return strings.TrimSpace(rows[0][0])
}

// HandleSetStatus overwrites the commanded deliverable status and counts the
// assertion. No ordering is enforced between states.
func (s *Service) HandleSetStatus(ctx context.Context, threadID, parentChannelID, threadName string, kind DeliverableKind, rawStatus string, ack Ack) error {
	status, ok := ParseStatus(rawStatus)
	if !ok {
		_ = ack.Reply(ctx, "Unknown status.", true)
		return fmt.Errorf("%w: status %q", ErrInvalidInput, rawStatus)
	}
	entry, err := s.ensureEntry(ctx, threadID, parentChannelID, threadName)
	if err != nil {
		_ = ack.Reply(ctx, "This thread is not part of a bound workflow.", true)
		return err
	}

	unlock := s.locks.Lock("thread/" + threadID)
	updated := s.ledger.Upsert(threadID, func(e *ThreadStatusEntry) {
		e.SetStatus(kind, status)
	})
	unlock()

	mark := updated.Statuses[kind]
	if status == StatusDelivered {
		s.notify(ctx, fmt.Sprintf("%s %s: %s delivered (%s)", entry.Category, OrdinalToken(entry.Ordinal), kind, threadName))
	}
	return ack.Reply(ctx, fmt.Sprintf("%s status set to %s (update %d).", kind, status, mark.UpdateCount), false)
}

// HandleMarkReviewed stamps the completion timestamp. Re-invoking overwrites
// the stamp rather than rejecting.
func (s *Service) HandleMarkReviewed(ctx context.Context, threadID, parentChannelID, threadName string, ack Ack) error {
	entry, err := s.ensureEntry(ctx, threadID, parentChannelID, threadName)
	if err != nil {
		_ = ack.Reply(ctx, "This thread is not part of a bound workflow.", true)
		return err
	}

	completedAt := s.now()
	unlock := s.locks.Lock("thread/" + threadID)
	s.ledger.Upsert(threadID, func(e *ThreadStatusEntry) {
		e.CompletedAt = &completedAt
	})
	unlock()

	s.notify(ctx, fmt.Sprintf("%s %s reviewed (%s)", entry.Category, OrdinalToken(entry.Ordinal), threadName))
	return ack.Reply(ctx, "Marked as reviewed.", false)
}

// HandleListNotifications renders the category listing from the ledger.
func (s *Service) HandleListNotifications(ctx context.Context, threadID, parentChannelID string, ack Ack) error {
	binding, ok := s.registry.Resolve(parentChannelID)
	if !ok {
		binding, ok = s.registry.Resolve(threadID)
	}
	if !ok {
		_ = ack.Reply(ctx, "This channel is not bound to a workflow.", true)
		return ErrUnboundChannel
	}
	entries := s.ledger.List(func(entry ThreadStatusEntry) bool {
		return entry.Category == binding.Category
	})
	return ack.Reply(ctx, RenderCategoryListing(binding.Category, entries), false)
}

func (s *Service) ensureEntry(ctx context.Context, threadID, parentChannelID, threadName string) (ThreadStatusEntry, error) {
	if entry, ok := s.ledger.Get(threadID); ok {
		return entry, nil
	}
	if _, ok := s.registry.Resolve(parentChannelID); !ok {
		return ThreadStatusEntry{}, ErrUnboundChannel
	}
	// Ledger entries are volatile; after a restart the entry is re-seeded
	// from the thread name on first command.
	if err := s.HandleThreadCreated(ctx, parentChannelID, threadID, threadName); err != nil {
		return ThreadStatusEntry{}, err
	}
	if entry, ok := s.ledger.Get(threadID); ok {
		return entry, nil
	}
	return ThreadStatusEntry{}, fmt.Errorf("%w: thread %s has no ordinal in its name", ErrNotFound, threadID)
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifyDest == "" {
		return
	}
	if err := s.notifier.Push(ctx, s.notifyDest, text); err != nil {
		s.logf("notification push failed: %v", err)
	}
}
