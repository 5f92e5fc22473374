package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/San-2310/hsbc-hack/internal/errors"
	api "github.com/San-2310/hsbc-hack/pkg/contracts/api/v1"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

type rulePathKey struct{}

// RuleHandler serves the rule registry
type RuleHandler struct {
	baseHandler
	service RuleService
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(service RuleService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RuleHandler {
	return &RuleHandler{
		baseHandler: newBaseHandler("rule", logger, errorHandler),
		service:     service,
	}
}

// Routes returns the rule routes
func (h *RuleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.List)
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	r.Route("/{kind}/{name}", func(r chi.Router) {
		r.Use(h.RuleCtx)
		r.Get("/", h.Get)
		r.Post("/", h.Save)
		r.Put("/", h.Save)
		r.Delete("/", h.Delete)
	})
	return r
}

// RuleCtx validates the kind and name path parameters
func (h *RuleHandler) RuleCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := api.RulePath{Kind: chi.URLParam(r, "kind"), Name: chi.URLParam(r, "name")}
		if err := h.validator.ValidateStruct(path); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rulePathKey{}, path)))
	})
}

func rulePath(r *http.Request) (domain.RuleKind, string) {
	path, _ := r.Context().Value(rulePathKey{}).(api.RulePath)
	return domain.RuleKind(path.Kind), path.Name
}

// List handles GET /api/v1/rules
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.service.ListRules(r.Context())
	total := 0
	for _, byName := range all {
		total += len(byName)
	}
	respond(w, r, http.StatusOK, map[string]interface{}{
		"rules": all,
		"total": total,
	})
}

// Get handles GET /api/v1/rules/{kind}/{name}
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, name := rulePath(r)
	rule, err := h.service.GetRule(r.Context(), kind, name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, api.RuleResponse{Kind: string(kind), Name: name, Rule: rule})
}

// Save handles POST and PUT /api/v1/rules/{kind}/{name}. The body is the rule config.
func (h *RuleHandler) Save(w http.ResponseWriter, r *http.Request) {
	kind, name := rulePath(r)
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	rule, err := h.service.SaveRule(r.Context(), kind, name, body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "rule saved",
		slog.String("kind", string(kind)),
		slog.String("name", name))
	respond(w, r, http.StatusCreated, api.RuleResponse{Kind: string(kind), Name: name, Rule: rule})
}

// Delete handles DELETE /api/v1/rules/{kind}/{name}
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, name := rulePath(r)
	if err := h.service.DeleteRule(r.Context(), kind, name); err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"kind": string(kind), "name": name, "deleted": "true"})
}

// Export handles GET /api/v1/rules/export. The document is served bare so
// it can be posted back to /import.
func (h *RuleHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.ExportRules(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="rules.json"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// Import handles POST /api/v1/rules/import. Imported rules replace rules of the same name.
func (h *RuleHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	n, err := h.service.ImportRules(r.Context(), body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, api.ImportResponse{Imported: n})
}
