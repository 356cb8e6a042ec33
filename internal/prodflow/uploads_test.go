package prodflow

import (
	"context"
	"testing"
	"time"
)

func TestFindTransferLink(t *testing.T) {
	cases := []struct {
		content string
		link    string
		ok      bool
	}{
		{"done! https://55.gigafile.nu/0612-abc123def", "https://55.gigafile.nu/0612-abc123def", true},
		{"https://gigafile.nu/xyz789 and more text", "https://gigafile.nu/xyz789", true},
		{"no link here", "", false},
		{"https://example.com/file.zip", "", false},
	}
	for _, tc := range cases {
		link, ok := FindTransferLink(tc.content)
		if link != tc.link || ok != tc.ok {
			t.Errorf("FindTransferLink(%q) = (%q, %v), want (%q, %v)", tc.content, link, ok, tc.link, tc.ok)
		}
	}
}

func TestExtractThreadOrdinal(t *testing.T) {
	cases := []struct {
		name string
		n    int
		ok   bool
	}{
		{"#12_My Title", 12, true},
		{"#3", 3, true},
		{" #7_Spaced ", 7, true},
		{"12_No Hash", 0, false},
		{"#0_Zero", 0, false},
		{"#_Empty", 0, false},
		{"Title #5", 0, false},
	}
	for _, tc := range cases {
		n, ok := ExtractThreadOrdinal(tc.name)
		if n != tc.n || ok != tc.ok {
			t.Errorf("ExtractThreadOrdinal(%q) = (%d, %v), want (%d, %v)", tc.name, n, ok, tc.n, tc.ok)
		}
	}
}

type fakeDrive struct {
	folders map[string]string // parentID|name -> folderID
	created []string
	uploads []string
}

func (d *fakeDrive) FindFolder(_ context.Context, parentID, name string) (string, error) {
	return d.folders[parentID+"|"+name], nil
}

func (d *fakeDrive) CreateFolder(_ context.Context, parentID, name string) (string, error) {
	id := "folder-" + name
	if d.folders == nil {
		d.folders = map[string]string{}
	}
	d.folders[parentID+"|"+name] = id
	d.created = append(d.created, parentID+"/"+name)
	return id, nil
}

func (d *fakeDrive) UploadFromURL(_ context.Context, folderID, name, sourceURL string) (string, error) {
	d.uploads = append(d.uploads, folderID+"/"+name+"<-"+sourceURL)
	return "file-1", nil
}

func uploadFixture(t *testing.T, sheet SheetClient) (*UploadIntake, *fakeDrive) {
	t.Helper()
	configs := validConfigs()
	configs[0].DriveFolders = map[WorkflowType]string{
		TypeLong: "root-long",
	}
	registry, err := NewRegistry(configs)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	drive := &fakeDrive{}
	intake := &UploadIntake{
		Drive:    drive,
		Sheets:   sheet,
		Registry: registry,
		Now: func() time.Time {
			return time.Date(2025, time.March, 30, 12, 0, 0, 0, time.UTC)
		},
	}
	return intake, drive
}

func TestUploadIntakeUsesScheduledYear(t *testing.T) {
	// The thread ordinal lives on the aggregate sheet for this category;
	// the per-type sheet's own #3 carries an unrelated date that must be
	// ignored.
	sheet := &stubSheet{rows: map[string][][]string{
		"overall!F6:F1000": {{"#1"}, {"#2"}, {"#3"}},
		"overall!H8:H8":    {{"2026-01-10"}},
		"long!F6:F1000":    {{"#3"}},
		"long!H6:H6":       {{"2024-03-03"}},
	}}
	intake, drive := uploadFixture(t, sheet)

	result, err := intake.HandleMessage(context.Background(), "chan-long", "#3_Launch", "here https://55.gigafile.nu/0612-abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Year != "2026" {
		t.Fatalf("expected year from scheduled date, got %+v", result)
	}
	if len(drive.created) != 2 {
		t.Fatalf("expected year and item folders, got %v", drive.created)
	}
	if drive.created[0] != "root-long/2026" {
		t.Fatalf("unexpected year folder: %s", drive.created[0])
	}
	if drive.created[1] != "folder-2026/#3_Launch" {
		t.Fatalf("unexpected item folder: %s", drive.created[1])
	}
	if len(drive.uploads) != 1 {
		t.Fatalf("expected one upload, got %v", drive.uploads)
	}
}

func TestUploadIntakeFallsBackToCurrentYear(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{
		"overall!F6:F1000": {},
	}}
	intake, _ := uploadFixture(t, sheet)

	result, err := intake.HandleMessage(context.Background(), "chan-long", "#9_Unscheduled", "https://gigafile.nu/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Year != "2025" {
		t.Fatalf("expected current year fallback, got %+v", result)
	}
}

func TestUploadIntakeReusesExistingYearFolder(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{
		"overall!F6:F1000": {},
	}}
	intake, drive := uploadFixture(t, sheet)
	drive.folders = map[string]string{"root-long|2025": "folder-existing"}

	result, err := intake.HandleMessage(context.Background(), "chan-long", "#9_Repeat", "https://gigafile.nu/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	for _, created := range drive.created {
		if created == "root-long/2025" {
			t.Fatal("year folder must be reused, not recreated")
		}
	}
}

func TestUploadIntakeIgnoresIrrelevantMessages(t *testing.T) {
	intake, drive := uploadFixture(t, &stubSheet{})

	cases := []struct {
		name          string
		parentChannel string
		threadName    string
		content       string
	}{
		{"no link", "chan-long", "#3_X", "just chatting"},
		{"unbound channel", "chan-unknown", "#3_X", "https://gigafile.nu/abc"},
		{"no ordinal", "chan-long", "untitled thread", "https://gigafile.nu/abc"},
		{"no drive folder", "chan-short", "#3_X", "https://gigafile.nu/abc"},
	}
	for _, tc := range cases {
		result, err := intake.HandleMessage(context.Background(), tc.parentChannel, tc.threadName, tc.content)
		if err != nil || result != nil {
			t.Errorf("%s: expected silent skip, got (%+v, %v)", tc.name, result, err)
		}
	}
	if len(drive.uploads) != 0 {
		t.Fatalf("no uploads expected, got %v", drive.uploads)
	}
}
