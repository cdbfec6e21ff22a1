package adapter

import (
	"context"
	"time"

	"github.com/dgnsrekt/browserbridge/internal/browserctx"
)

// responseWaitOverride holds a site's waitForResponse polling parameters
// (spec.md §4.3 step 8). The zero value means "no override": Execute falls
// back to the Tab Controller's default settle delay.
type responseWaitOverride struct {
	enabled        bool
	pollIntervalMS int
	maxWaitMS      int
}

// genericAdapter implements Adapter from a static SelectorProfile, which
// covers every built-in site: none of them need bespoke readiness or
// timing logic beyond what Execute already provides.
type genericAdapter struct {
	id           string
	prefixes     []string
	selectors    SelectorProfile
	waitOverride responseWaitOverride
}

func (a *genericAdapter) WebsiteID() string { return a.id }

func (a *genericAdapter) MatchesURL(url string) bool {
	return HasAnyPrefix(url, a.prefixes...)
}

func (a *genericAdapter) Selectors() SelectorProfile { return a.selectors }

func (a *genericAdapter) IsPageReady(ctx context.Context, page browserctx.Page) bool {
	if len(a.selectors.RootReady) == 0 {
		return true
	}
	for _, sel := range a.selectors.RootReady {
		if err := page.WaitSelector(ctx, sel, 2*time.Second); err == nil {
			return true
		}
	}
	return false
}

func (a *genericAdapter) ResponseWaitOverride() (bool, int, int) {
	return a.waitOverride.enabled, a.waitOverride.pollIntervalMS, a.waitOverride.maxWaitMS
}

// BuiltIns returns the adapters shipped with the bridge, in the order they
// should be registered (spec.md §4.4: first URL match wins).
func BuiltIns() []Adapter {
	return []Adapter{
		&genericAdapter{
			id:       "chatgpt",
			prefixes: []string{"https://chat.openai.com", "https://chatgpt.com"},
			selectors: SelectorProfile{
				PromptInput:   []string{"#prompt-textarea", "textarea[data-id]", "div[contenteditable='true']"},
				SendButton:    []string{"button[data-testid='send-button']", "button[aria-label='Send prompt']"},
				RootReady:     []string{"#prompt-textarea", "main"},
				ResponseReady: []string{"button[data-testid='copy-turn-action-button']"},
				ResponseBusy:  []string{"button[data-testid='stop-button']"},
			},
			waitOverride: responseWaitOverride{enabled: true, pollIntervalMS: 500, maxWaitMS: 60000},
		},
		&genericAdapter{
			id:       "claude",
			prefixes: []string{"https://claude.ai"},
			selectors: SelectorProfile{
				PromptInput:   []string{"div.ProseMirror[contenteditable='true']", "textarea"},
				SendButton:    []string{"button[aria-label='Send Message']"},
				RootReady:     []string{"div.ProseMirror[contenteditable='true']"},
				ResponseReady: []string{"button[aria-label='Copy to clipboard']"},
				ResponseBusy:  []string{"button[aria-label='Stop Response']"},
			},
			waitOverride: responseWaitOverride{enabled: true, pollIntervalMS: 500, maxWaitMS: 60000},
		},
		&genericAdapter{
			id:       "gemini",
			prefixes: []string{"https://gemini.google.com"},
			selectors: SelectorProfile{
				PromptInput: []string{"rich-textarea div[contenteditable='true']"},
				SendButton:  []string{"button[aria-label='Send message']"},
				RootReady:   []string{"rich-textarea"},
			},
		},
		&genericAdapter{
			id:       "perplexity",
			prefixes: []string{"https://www.perplexity.ai", "https://perplexity.ai"},
			selectors: SelectorProfile{
				PromptInput: []string{"textarea[placeholder]"},
				SendButton:  []string{"button[aria-label='Submit']"},
				RootReady:   []string{"textarea[placeholder]"},
			},
		},
	}
}
