package adapter

import "testing"

func TestBuiltInsRegistrationOrderAndIDs(t *testing.T) {
	want := []string{"chatgpt", "claude", "gemini", "perplexity"}
	got := BuiltIns()
	if len(got) != len(want) {
		t.Fatalf("got %d adapters, want %d", len(got), len(want))
	}
	for i, a := range got {
		if a.WebsiteID() != want[i] {
			t.Errorf("index %d: got %q, want %q", i, a.WebsiteID(), want[i])
		}
	}
}

func TestBuiltInsMatchURL(t *testing.T) {
	cases := []struct {
		id  string
		url string
	}{
		{"chatgpt", "https://chatgpt.com/c/123"},
		{"chatgpt", "https://chat.openai.com/c/123"},
		{"claude", "https://claude.ai/chats/abc"},
		{"gemini", "https://gemini.google.com/app"},
		{"perplexity", "https://www.perplexity.ai/search/x"},
	}
	for _, tc := range cases {
		found := false
		for _, a := range BuiltIns() {
			if a.WebsiteID() == tc.id {
				found = a.MatchesURL(tc.url)
			}
		}
		if !found {
			t.Errorf("adapter %q did not match URL %q", tc.id, tc.url)
		}
	}
}

func TestBuiltInsHaveNonEmptySelectorProfiles(t *testing.T) {
	for _, a := range BuiltIns() {
		sel := a.Selectors()
		if len(sel.PromptInput) == 0 {
			t.Errorf("%s: empty PromptInput selectors", a.WebsiteID())
		}
		if len(sel.RootReady) == 0 {
			t.Errorf("%s: empty RootReady selectors", a.WebsiteID())
		}
	}
}

func TestBuiltInsResponseWaitOverrides(t *testing.T) {
	overridden := map[string]bool{"chatgpt": true, "claude": true}
	for _, a := range BuiltIns() {
		enabled, pollMS, maxWaitMS := a.ResponseWaitOverride()
		if enabled != overridden[a.WebsiteID()] {
			t.Errorf("%s: ResponseWaitOverride enabled = %v, want %v", a.WebsiteID(), enabled, overridden[a.WebsiteID()])
		}
		if !enabled {
			continue
		}
		if pollMS <= 0 || maxWaitMS <= 0 {
			t.Errorf("%s: override has non-positive poll/max-wait: %d/%d", a.WebsiteID(), pollMS, maxWaitMS)
		}
		sel := a.Selectors()
		if len(sel.ResponseReady) == 0 {
			t.Errorf("%s: override enabled but no ResponseReady selectors", a.WebsiteID())
		}
		if len(sel.ResponseBusy) == 0 {
			t.Errorf("%s: override enabled but no ResponseBusy selectors", a.WebsiteID())
		}
	}
}
