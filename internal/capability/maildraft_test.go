package capability

import "testing"

func TestParseMailDraft(t *testing.T) {
	cases := []struct {
		name string
		text string
		want MailDraft
	}{
		{
			"recipient with spoken body",
			"send an email to bob@example.com saying hello",
			MailDraft{To: "bob@example.com", Body: "hello"},
		},
		{
			"quoted subject and body",
			`email carol@example.com with subject "Q3 plan" and body "Draft attached, please review."`,
			MailDraft{To: "carol@example.com", Subject: "Q3 plan", Body: "Draft attached, please review."},
		},
		{
			"inline subject stops at body marker",
			"send mail to dev@example.com subject release notes and the email body can say build is green",
			MailDraft{To: "dev@example.com", Subject: "release notes", Body: "build is green"},
		},
		{
			"address lowered",
			"forward this to Bob.Smith@Example.COM",
			MailDraft{To: "bob.smith@example.com"},
		},
		{
			"no address yields empty draft",
			"send the update to bob",
			MailDraft{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseMailDraft(tc.text)
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestMailDraftToArgsSkipsEmptyFields(t *testing.T) {
	args := MailDraft{To: "bob@example.com", Body: "hello"}.ToArgs()
	if args["to"] != "bob@example.com" || args["body"] != "hello" {
		t.Errorf("args = %+v", args)
	}
	if _, ok := args["subject"]; ok {
		t.Errorf("empty subject must be omitted, args = %+v", args)
	}
}
