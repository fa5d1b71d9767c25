package ingest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ashureev/outreach-agent/internal/domain"
)

func TestParseMarkerLines(t *testing.T) {
	t.Parallel()
	out := Parse("Replied to Dan\nSkipped 2 threads")

	if !reflect.DeepEqual(out.Acted, []string{"Replied to Dan"}) {
		t.Fatalf("acted = %v", out.Acted)
	}
	if out.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", out.Skipped)
	}
	if out.Actions[0].Contact != "Dan" {
		t.Fatalf("contact = %q", out.Actions[0].Contact)
	}
}

func TestParseIsCaseInsensitiveAndIgnoresNoise(t *testing.T) {
	t.Parallel()
	summary := strings.Join([]string{
		"Done. Here is the summary:",
		"",
		"  [DRY RUN] WOULD SEND TO Ann Lee: \"Happy birthday, Ann!\"  ",
		"wished Bob a happy birthday.",
		"SKIPPED Carol: blacklisted",
		"skipped mallory: on cooldown",
		"No more unread threads.",
	}, "\n")

	out := Parse(summary)
	want := []string{
		"[DRY RUN] WOULD SEND TO Ann Lee: \"Happy birthday, Ann!\"",
		"wished Bob a happy birthday.",
	}
	if !reflect.DeepEqual(out.Acted, want) {
		t.Fatalf("acted = %q", out.Acted)
	}
	if out.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", out.Skipped)
	}
	if out.RawSummary != summary {
		t.Fatal("raw summary not preserved")
	}

	if got := out.Actions[0]; got.Contact != "Ann Lee" || got.Message != "Happy birthday, Ann!" {
		t.Fatalf("first action = %+v", got)
	}
	if got := out.Actions[1]; got.Contact != "Bob" {
		t.Fatalf("second action = %+v", got)
	}
}

func TestParseActionMarkerWinsOverSkip(t *testing.T) {
	t.Parallel()
	out := Parse("Replied to Eve, skipped the rest")
	if len(out.Acted) != 1 || out.Skipped != 0 {
		t.Fatalf("acted=%v skipped=%d", out.Acted, out.Skipped)
	}
}

func TestParseContactExtraction(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		contact string
		message string
	}{
		`Replied to Frank Ocean: "Thanks so much!"`:     {"Frank Ocean", "Thanks so much!"},
		`Wished Grace Hopper - "Happy birthday Grace!"`: {"Grace Hopper", "Happy birthday Grace!"},
		`Replied to Heidi (thanked her)`:                {"Heidi", ""},
		`Wished Ivan happy birthday`:                    {"Ivan", ""},
		`- Replied to Judy: Thank you!`:                 {"Judy", "Thank you!"},
		`Replied to “Karl”`:                             {"", "Karl"},
		`Wished Happy Gilmore: "Have a great one!"`:     {"Happy Gilmore", "Have a great one!"},
		`Wished Zoe a happy birthday`:                   {"Zoe", ""},
		`Wished Happy`:                                  {"Happy", ""},
	}
	for line, want := range cases {
		out := Parse(line)
		if len(out.Actions) != 1 {
			t.Errorf("%q: expected one action, got %d", line, len(out.Actions))
			continue
		}
		got := out.Actions[0]
		if got.Contact != want.contact || got.Message != want.message {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", line, got.Contact, got.Message, want.contact, want.message)
		}
	}
}

func TestParseFollowerCount(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		n  int
		ok bool
	}{
		"Followers: 1,234":              {1234, true},
		"The profile has\nfollowers 42": {42, true},
		"could not load the page":       {0, false},
	}
	for summary, want := range cases {
		n, ok := ParseFollowerCount(summary)
		if n != want.n || ok != want.ok {
			t.Errorf("%q: got (%d, %v), want (%d, %v)", summary, n, ok, want.n, want.ok)
		}
	}
}

type recordCall struct {
	kind    domain.TaskKind
	contact string
	message string
	dryRun  bool
}

type fakeHistory struct {
	calls []recordCall
	fail  map[string]error
}

func (f *fakeHistory) Record(_ context.Context, kind domain.TaskKind, contact, message string, dryRun bool) error {
	if err := f.fail[contact]; err != nil {
		return err
	}
	f.calls = append(f.calls, recordCall{kind, contact, message, dryRun})
	return nil
}

func TestRecorderWritesDistinctContacts(t *testing.T) {
	t.Parallel()
	history := &fakeHistory{}
	r := NewRecorder(history, nil)

	outcome := Parse(strings.Join([]string{
		`[DRY RUN] Would send to Ann: "Happy birthday Ann!"`,
		`[DRY RUN] Would send to ANN: "Happy birthday again"`,
		`Wished`,
		`Skipped Bob: blacklisted`,
	}, "\n"))

	n, err := r.Record(context.Background(), domain.TaskBirthdayWish, outcome, true)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if n != 1 || len(history.calls) != 1 {
		t.Fatalf("written=%d calls=%+v", n, history.calls)
	}
	want := recordCall{domain.TaskBirthdayWish, "Ann", "Happy birthday Ann!", true}
	if history.calls[0] != want {
		t.Fatalf("call = %+v, want %+v", history.calls[0], want)
	}
}

func TestRecorderContinuesAfterFailure(t *testing.T) {
	t.Parallel()
	errDisk := errors.New("disk full")
	history := &fakeHistory{fail: map[string]error{"Dan": errDisk}}
	r := NewRecorder(history, nil)

	outcome := Parse("Replied to Dan\nReplied to Eve")
	n, err := r.Record(context.Background(), domain.TaskReply, outcome, false)
	if !errors.Is(err, errDisk) {
		t.Fatalf("expected joined disk error, got %v", err)
	}
	if n != 1 || history.calls[0].contact != "Eve" {
		t.Fatalf("written=%d calls=%+v", n, history.calls)
	}
}

func TestRecorderIgnoresSkipReports(t *testing.T) {
	t.Parallel()
	history := &fakeHistory{}
	r := NewRecorder(history, nil)

	outcome := Parse("Skipped Bob: already wished today\nWished Cara: \"Happy birthday!\"")
	if len(outcome.Acted) != 2 || outcome.Skipped != 0 {
		t.Fatalf("acted=%v skipped=%d", outcome.Acted, outcome.Skipped)
	}
	if !outcome.Actions[0].SkipReport || outcome.Actions[1].SkipReport {
		t.Fatalf("unexpected skip flags: %+v", outcome.Actions)
	}

	n, err := r.Record(context.Background(), domain.TaskBirthdayWish, outcome, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(history.calls) != 1 || history.calls[0].contact != "Cara" {
		t.Fatalf("written=%d calls=%+v", n, history.calls)
	}
}
