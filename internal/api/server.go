// Package api exposes the Tab Controller's operations over HTTP (spec.md
// §6, external caller interface): a typed REST facade built the same way
// as the teacher's controller API, on huma for schema/validation and chi
// for routing and middleware.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/browserbridge/internal/bridgeerr"
	"github.com/dgnsrekt/browserbridge/internal/tabs"
)

// Server wires the Tab Controller to an HTTP mux.
type Server struct {
	controller *tabs.Controller
	handler    http.Handler
}

// NewServer builds the HTTP facade for controller.
func NewServer(controller *tabs.Controller) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)

	humaCfg := huma.DefaultConfig("browser-automation bridge", "1.0.0")
	api := humachi.New(router, humaCfg)

	s := &Server{controller: controller, handler: router}
	s.registerRoutes(api)
	return s
}

// ServeHTTP lets Server itself be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type openTabInput struct {
	Body struct {
		URL string `json:"url" doc:"Page URL to navigate a fresh tab to" required:"true"`
	}
}

type openTabOutput struct {
	Body struct {
		TabID string `json:"tabId"`
	}
}

type closeTabInput struct {
	TabID string `path:"tabId"`
}

type executePromptInput struct {
	TabID string `path:"tabId"`
	Body  struct {
		SiteID string `json:"siteId,omitempty" doc:"Adapter id; inferred from the tab's URL if omitted"`
		Text   string `json:"text" doc:"Prompt text to submit" required:"true"`
	}
}

type getPageContentInput struct {
	TabID string `path:"tabId"`
}

type getPageContentOutput struct {
	Body struct {
		Content string `json:"content"`
	}
}

type tabSummary struct {
	ID         string `json:"id"`
	SiteID     string `json:"siteId,omitempty"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	CreatedAt  string `json:"createdAt"`
	LastUsedAt string `json:"lastUsedAt"`
}

type getTabsOutput struct {
	Body struct {
		Tabs []tabSummary `json:"tabs"`
	}
}

type supportedWebsitesOutput struct {
	Body struct {
		Websites []string `json:"websites"`
	}
}

func (s *Server) registerRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "openTab",
		Method:      http.MethodPost,
		Path:        "/tabs",
		Summary:     "Open a new tab at the given URL",
	}, func(ctx context.Context, in *openTabInput) (*openTabOutput, error) {
		t, err := s.controller.OpenTab(ctx, in.Body.URL)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &openTabOutput{}
		out.Body.TabID = t.ID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "closeTab",
		Method:      http.MethodDelete,
		Path:        "/tabs/{tabId}",
		Summary:     "Close a tab",
	}, func(ctx context.Context, in *closeTabInput) (*struct{}, error) {
		if err := s.controller.CloseTab(ctx, in.TabID); err != nil {
			return nil, mapErr(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "executePrompt",
		Method:      http.MethodPost,
		Path:        "/tabs/{tabId}/prompt",
		Summary:     "Submit a prompt into a tab's chat input",
	}, func(ctx context.Context, in *executePromptInput) (*struct{}, error) {
		if err := s.controller.ExecutePrompt(ctx, in.TabID, in.Body.SiteID, in.Body.Text); err != nil {
			return nil, mapErr(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getPageContent",
		Method:      http.MethodGet,
		Path:        "/tabs/{tabId}/content",
		Summary:     "Read a tab's rendered HTML",
	}, func(ctx context.Context, in *getPageContentInput) (*getPageContentOutput, error) {
		content, err := s.controller.GetPageContent(ctx, in.TabID)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &getPageContentOutput{}
		out.Body.Content = content
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getTabs",
		Method:      http.MethodGet,
		Path:        "/tabs",
		Summary:     "List open tabs",
	}, func(ctx context.Context, in *struct{}) (*getTabsOutput, error) {
		snap := s.controller.GetTabs(ctx)
		out := &getTabsOutput{}
		out.Body.Tabs = make([]tabSummary, 0, len(snap))
		for _, t := range snap {
			out.Body.Tabs = append(out.Body.Tabs, tabSummary{
				ID:         t.ID,
				SiteID:     t.SiteID,
				URL:        t.Page.URL(),
				Title:      t.Page.Title(),
				CreatedAt:  t.CreatedAt.Format(httpTimeFormat),
				LastUsedAt: t.LastUsedAt.Format(httpTimeFormat),
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "supportedWebsites",
		Method:      http.MethodGet,
		Path:        "/websites",
		Summary:     "List website ids this bridge has an adapter for",
	}, func(ctx context.Context, in *struct{}) (*supportedWebsitesOutput, error) {
		out := &supportedWebsitesOutput{}
		out.Body.Websites = s.controller.SupportedWebsites()
		return out, nil
	})
}

const httpTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// mapErr translates the Tab Controller's bridgeerr.CodedError taxonomy
// into huma's typed HTTP errors.
func mapErr(err error) error {
	var coded *bridgeerr.CodedError
	if !errors.As(err, &coded) {
		return huma.Error500InternalServerError("internal error", err)
	}
	switch coded.Code {
	case bridgeerr.CodeTabNotFound, bridgeerr.CodeAdapterMissing:
		return huma.Error404NotFound(coded.Message, coded.Cause)
	case bridgeerr.CodeTabClosed, bridgeerr.CodeValidation:
		return huma.Error400BadRequest(coded.Message, coded.Cause)
	case bridgeerr.CodeBrowserUnavailable:
		return huma.Error503ServiceUnavailable(coded.Message, coded.Cause)
	default:
		return huma.Error500InternalServerError(coded.Message, coded.Cause)
	}
}
