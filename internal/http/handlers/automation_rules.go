package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/glowdesk/salon-platform/internal/automation"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

// RuleStore is the automation rule persistence surface.
type RuleStore interface {
	List(ctx context.Context) ([]automation.Rule, error)
	Get(ctx context.Context, id int64) (*automation.Rule, error)
	Insert(ctx context.Context, rule *automation.Rule) error
	Update(ctx context.Context, rule *automation.Rule) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// AutomationRulesHandler manages notification rules on the admin surface.
type AutomationRulesHandler struct {
	rules  RuleStore
	logger *logging.Logger
}

// NewAutomationRulesHandler creates the handler.
func NewAutomationRulesHandler(rules RuleStore, logger *logging.Logger) *AutomationRulesHandler {
	if rules == nil {
		panic("handlers: rule store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AutomationRulesHandler{rules: rules, logger: logger}
}

// RuleRequest creates or replaces a rule's configuration.
type RuleRequest struct {
	Trigger           string `json:"trigger"`
	CustomTriggerName string `json:"custom_trigger_name,omitempty"`
	Channel           string `json:"channel"`
	Active            *bool  `json:"active,omitempty"`
	Subject           string `json:"subject,omitempty"`
	Template          string `json:"template"`
}

func (req *RuleRequest) validate() (string, bool) {
	trigger := automation.Trigger(req.Trigger)
	if !trigger.Valid() {
		return "unknown trigger", false
	}
	if trigger == automation.TriggerCustom && strings.TrimSpace(req.CustomTriggerName) == "" {
		return "custom_trigger_name required for custom trigger", false
	}
	if !automation.Channel(req.Channel).Valid() {
		return "unknown channel", false
	}
	if strings.TrimSpace(req.Template) == "" {
		return "template required", false
	}
	return "", true
}

// List returns all rules.
// GET /admin/automation/rules
func (h *AutomationRulesHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		h.logger.Error("rule list failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []automation.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// Get returns one rule.
// GET /admin/automation/rules/{id}
func (h *AutomationRulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	rule, err := h.rules.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("rule read failed", "error", err, "rule_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rule == nil {
		jsonError(w, "rule not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Create adds a rule.
// POST /admin/automation/rules
func (h *AutomationRulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		jsonError(w, msg, http.StatusUnprocessableEntity)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule := &automation.Rule{
		Trigger:           automation.Trigger(req.Trigger),
		CustomTriggerName: req.CustomTriggerName,
		Channel:           automation.Channel(req.Channel),
		Active:            active,
		Subject:           req.Subject,
		Template:          req.Template,
	}
	if err := h.rules.Insert(r.Context(), rule); err != nil {
		h.logger.Error("rule insert failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// Update replaces a rule's configuration.
// PUT /admin/automation/rules/{id}
func (h *AutomationRulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		jsonError(w, msg, http.StatusUnprocessableEntity)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule := &automation.Rule{
		ID:                id,
		Trigger:           automation.Trigger(req.Trigger),
		CustomTriggerName: req.CustomTriggerName,
		Channel:           automation.Channel(req.Channel),
		Active:            active,
		Subject:           req.Subject,
		Template:          req.Template,
	}
	found, err := h.rules.Update(r.Context(), rule)
	if err != nil {
		h.logger.Error("rule update failed", "error", err, "rule_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		jsonError(w, "rule not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Delete removes a rule.
// DELETE /admin/automation/rules/{id}
func (h *AutomationRulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	found, err := h.rules.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("rule delete failed", "error", err, "rule_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		jsonError(w, "rule not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
