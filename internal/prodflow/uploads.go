package prodflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var transferLinkPattern = regexp.MustCompile(`https?://(?:\d+\.)?gigafile\.nu/[\w\-]+`)

// FindTransferLink returns the first file-transfer URL in a message, if any.
func FindTransferLink(content string) (string, bool) {
	match := transferLinkPattern.FindString(content)
	return match, match != ""
}

var threadOrdinalPattern = regexp.MustCompile(`^#(\d+)`)

// ExtractThreadOrdinal parses the leading "#N" token of a thread display
// name.
func ExtractThreadOrdinal(threadName string) (int, bool) {
	match := threadOrdinalPattern.FindStringSubmatch(strings.TrimSpace(threadName))
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// DriveClient is the boundary to the file-storage upload pipeline.
type DriveClient interface {
	FindFolder(ctx context.Context, parentID, name string) (string, error)
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
	UploadFromURL(ctx context.Context, folderID, name, sourceURL string) (string, error)
}

type UploadResult struct {
	FileID   string
	FolderID string
	Year     string
}

// UploadIntake mirrors delivery links posted into project threads to the
// archive drive: year folder, then a per-item folder named after the thread.
type UploadIntake struct {
	Drive    DriveClient
	Sheets   SheetClient
	Registry *Registry
	Now      func() time.Time
	Logf     func(format string, v ...any)
}

// HandleMessage inspects one thread message. It returns (nil, nil) when the
// message carries no transfer link or the thread is outside any binding, so
// callers can feed every message through without pre-filtering.
func (u *UploadIntake) HandleMessage(ctx context.Context, parentChannelID, threadName, content string) (*UploadResult, error) {
	if u == nil || u.Drive == nil {
		return nil, nil
	}
	link, ok := FindTransferLink(content)
	if !ok {
		return nil, nil
	}
	binding, ok := u.Registry.Resolve(parentChannelID)
	if !ok {
		return nil, nil
	}
	ordinal, ok := ExtractThreadOrdinal(threadName)
	if !ok {
		return nil, nil
	}
	folderRoot := binding.Config.DriveFolders[binding.Type]
	if strings.TrimSpace(folderRoot) == "" {
		return nil, nil
	}

	year := u.resolveYear(ctx, binding, ordinal)
	yearFolderID, err := u.findOrCreateFolder(ctx, folderRoot, year)
	if err != nil {
		return nil, fmt.Errorf("year folder %s: %w", year, err)
	}
	itemFolderID, err := u.Drive.CreateFolder(ctx, yearFolderID, threadName)
	if err != nil {
		return nil, fmt.Errorf("item folder %s: %w", threadName, err)
	}
	fileID, err := u.Drive.UploadFromURL(ctx, itemFolderID, "video_data.zip", link)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", link, err)
	}
	return &UploadResult{FileID: fileID, FolderID: itemFolderID, Year: year}, nil
}

// resolveYear prefers the scheduled post date on the sheet; the current year
// is the fallback when the row or date is missing. Thread ordinals live in
// the aggregate number space when the category has an aggregate record.
func (u *UploadIntake) resolveYear(ctx context.Context, binding Binding, ordinal int) string {
	now := u.Now
	if now == nil {
		now = time.Now
	}
	cfg := binding.Config
	record := cfg.RecordNames.ForType(binding.Type)
	ordinalColumn := OrdinalColumn(binding.Type)
	dateColumn := DateColumn(binding.Type)
	if cfg.HasAggregate {
		record = cfg.RecordNames.Overall
		ordinalColumn = aggregateOrdinalColumn
		dateColumn = aggregateDateColumn
	}
	rowIndex, err := FindRowByOrdinal(ctx, u.Sheets, cfg.StoreID, record, ordinalColumn, ordinal)
	if err != nil || rowIndex == 0 {
		if err != nil {
			u.logf("post date lookup for %s: %v", OrdinalToken(ordinal), err)
		}
		return strconv.Itoa(now().Year())
	}
	rows, err := u.Sheets.ReadRange(ctx, cfg.StoreID, fmt.Sprintf("%s!%s%d:%s%d", record, dateColumn, rowIndex, dateColumn, rowIndex))
	if err != nil || len(rows) == 0 || len(rows[0]) == 0 {
		return strconv.Itoa(now().Year())
	}
	postDate, err := time.Parse(dateLayout, strings.TrimSpace(rows[0][0]))
	if err != nil {
		return strconv.Itoa(now().Year())
	}
	return strconv.Itoa(postDate.Year())
}

func (u *UploadIntake) findOrCreateFolder(ctx context.Context, parentID, name string) (string, error) {
	folderID, err := u.Drive.FindFolder(ctx, parentID, name)
	if err != nil {
		return "", err
	}
	if folderID != "" {
		return folderID, nil
	}
	return u.Drive.CreateFolder(ctx, parentID, name)
}

func (u *UploadIntake) logf(format string, v ...any) {
	if u.Logf != nil {
		u.Logf(format, v...)
	}
}
