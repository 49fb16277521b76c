package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"crimefeed/internal/alert"
	"crimefeed/internal/classify"
	"crimefeed/internal/crime"
)

func f64(v float64) *float64 { return &v }

func testCandidate() alert.Candidate {
	return alert.Candidate{
		Record: crime.Record{
			ID:                 "case-menlopark-26-001",
			Kind:               crime.KindCase,
			Agency:             "Menlo Park Police Department",
			Street:             "100 TEST ST",
			City:               "Menlo Park",
			Date:               "2026-01-05T08:30:00Z",
			Latitude:           f64(37.46),
			Longitude:          f64(-122.17),
			CrimeType:          "Burglary",
			OffenseDescription: "Burglary - Residential (F)",
		},
		Classification: classify.Result{
			Category:      classify.CategoryBurglary,
			Severity:      classify.SeverityHigh,
			AlertEligible: true,
			AlertTier:     classify.TierWide,
		},
		DistanceMeters: 1931.2,
		DistanceMiles:  1.2,
	}
}

func testContent() Content {
	return Content{BoundaryName: "Menlo Oaks", MapURL: "https://example.org/map/"}
}

func TestSubject(t *testing.T) {
	got := testContent().Subject(testCandidate())
	want := "Burglary - Residential (F) near 100 TEST ST — 1.2mi from Menlo Oaks (high)"
	if got != want {
		t.Errorf("Subject = %q, want %q", got, want)
	}
}

func TestSubjectFallbackLocation(t *testing.T) {
	c := testCandidate()
	c.Record.Street = ""
	if got := testContent().Subject(c); !strings.Contains(got, "near Menlo Park") {
		t.Errorf("Subject without street = %q, want city fallback", got)
	}
	c.Record.City = ""
	if got := testContent().Subject(c); !strings.Contains(got, "near Unknown") {
		t.Errorf("Subject without location = %q, want Unknown", got)
	}
}

func TestBuildMessage(t *testing.T) {
	msg := testContent().buildMessage("alerts@example.org", []string{"a@example.org", "b@example.org"}, testCandidate())

	for _, want := range []string{
		"From: alerts@example.org",
		"To: a@example.org, b@example.org",
		"Subject: Burglary - Residential (F) near 100 TEST ST",
		`Content-Type: multipart/alternative; boundary="crimefeed-alt"`,
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Type: text/html; charset=UTF-8",
		"Distance: 1.2mi from Menlo Oaks",
		"Jan 05, 2026",
		"https://example.org/map/",
		"--crimefeed-alt--",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if strings.Contains(strings.ReplaceAll(msg, "\r\n", ""), "\n") {
		t.Error("message contains bare LF line endings")
	}
}

func TestDisplayDate(t *testing.T) {
	tests := []struct {
		date, timeField, want string
	}{
		{"", "", "Unknown"},
		{"2026-01-05T20:30:00Z", "", "Jan 05, 2026 08:30 PM UTC"},
		{"2026-01-05", "", "Jan 05, 2026"},
		{"2026-01-05T20:30:00Z", "20:30:00", "Jan 05, 2026 08:30 PM UTC 20:30:00"},
		{"not-a-date", "", "not-a-date"},
	}
	for _, tt := range tests {
		if got := displayDate(tt.date, tt.timeField); got != tt.want {
			t.Errorf("displayDate(%q, %q) = %q, want %q", tt.date, tt.timeField, got, tt.want)
		}
	}
}

type fakePoster struct {
	channel string
	texts   []string
	err     error
}

func (f *fakePoster) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channel = channelID
	f.texts = append(f.texts, "posted")
	return "", "", f.err
}

func TestSlackNotifierDispatch(t *testing.T) {
	poster := &fakePoster{}
	n := &SlackNotifier{Content: testContent(), API: poster, ChannelID: "C012345"}

	if err := n.Dispatch(testCandidate()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if poster.channel != "C012345" {
		t.Errorf("posted to channel %q", poster.channel)
	}

	poster.err = errors.New("channel_not_found")
	if err := n.Dispatch(testCandidate()); err == nil {
		t.Error("expected error from failed post")
	}
}

func TestPostSummary(t *testing.T) {
	poster := &fakePoster{}
	n := &SlackNotifier{Content: testContent(), API: poster, ChannelID: "C012345"}

	if err := n.PostSummary("Fetch complete: 12 records fetched"); err != nil {
		t.Fatalf("PostSummary: %v", err)
	}
	if poster.channel != "C012345" || len(poster.texts) != 1 {
		t.Errorf("summary posted to %q, %d messages", poster.channel, len(poster.texts))
	}

	poster.err = errors.New("channel_not_found")
	if err := n.PostSummary("again"); err == nil {
		t.Error("expected error from failed post")
	}
}

type stubDispatcher struct {
	calls int
	err   error
}

func (s *stubDispatcher) Subject(alert.Candidate) string { return "stub" }
func (s *stubDispatcher) Dispatch(alert.Candidate) error {
	s.calls++
	return s.err
}

func TestMultiDispatchesAllChannels(t *testing.T) {
	failing := &stubDispatcher{err: errors.New("smtp: timeout")}
	ok := &stubDispatcher{}
	m := &Multi{Content: testContent(), Channels: []alert.Dispatcher{failing, ok}}

	err := m.Dispatch(testCandidate())
	if err == nil {
		t.Fatal("expected joined error when one channel fails")
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("calls = %d/%d, want every channel attempted", failing.calls, ok.calls)
	}
}
