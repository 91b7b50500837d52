package outcome

import "testing"

func TestCanonicalAction(t *testing.T) {
	cases := []struct {
		raw   string
		want  string
		valid bool
	}{
		{"gmail", ActionGmail, true},
		{"mail", ActionGmail, true},
		{"GOOGLE_GMAIL", ActionGmail, true},
		{"calendar", ActionCalendar, true},
		{"search", ActionWebSearch, true},
		{"web", ActionWebSearch, true},
		{"drive", ActionDrive, true},
		{"chat", ActionChat, true},
		{"spreadsheets", "spreadsheets", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, valid := CanonicalAction(tc.raw)
		if valid != tc.valid {
			t.Errorf("CanonicalAction(%q) valid = %v, want %v", tc.raw, valid, tc.valid)
		}
		if valid && got != tc.want {
			t.Errorf("CanonicalAction(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestWriteClassificationIsFixed(t *testing.T) {
	writes := []string{GmailSend, CalendarWrite}
	reads := []string{GmailRead, CalendarRead, DriveSearch, WebSearch, Chat}
	for _, tag := range writes {
		if !IsWrite(tag) {
			t.Errorf("IsWrite(%q) = false, want true", tag)
		}
	}
	for _, tag := range reads {
		if IsWrite(tag) {
			t.Errorf("IsWrite(%q) = true, want false", tag)
		}
	}
}

func TestAllowedPerAction(t *testing.T) {
	if !Allowed(ActionCalendar, CalendarWrite) || !Allowed(ActionCalendar, CalendarRead) {
		t.Error("calendar outcomes should be allowed for calendar action")
	}
	if Allowed(ActionCalendar, GmailSend) {
		t.Error("gmail_send must not be allowed for calendar action")
	}
	if Allowed(ActionDrive, WebSearch) {
		t.Error("web_search must not be allowed for drive action")
	}
}

func TestInfer(t *testing.T) {
	cases := []struct {
		action, query, want string
	}{
		{ActionGmail, "send an email to bob@example.com", GmailSend},
		{ActionGmail, "check my inbox", GmailRead},
		{ActionCalendar, "add event tomorrow at 2pm project sync", CalendarWrite},
		{ActionCalendar, "what's on my calendar this week", CalendarRead},
		{ActionDrive, "find the budget spreadsheet", DriveSearch},
		{ActionWebSearch, "latest Go release", WebSearch},
		{ActionChat, "hello", Chat},
	}
	for _, tc := range cases {
		if got := Infer(tc.action, tc.query); got != tc.want {
			t.Errorf("Infer(%q, %q) = %q, want %q", tc.action, tc.query, got, tc.want)
		}
	}
}
