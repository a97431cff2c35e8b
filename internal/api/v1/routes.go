// Package v1 provides the REST API handlers of the update manager.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/pwa-update-manager/internal/api/common"
	"github.com/stacklok/pwa-update-manager/internal/coordinator"
	"github.com/stacklok/pwa-update-manager/internal/delivery"
	"github.com/stacklok/pwa-update-manager/internal/dialog"
	"github.com/stacklok/pwa-update-manager/internal/record"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

//go:generate mockgen -destination=mocks/mock_routes.go -package=mocks -source=routes.go UpdateService,PromptQueue,DeviceUpdater

// maxBodyBytes bounds request bodies; activations carry the installed icons
const maxBodyBytes = 8 << 20

// UpdateService is the part of the coordinator the API drives
type UpdateService interface {
	OnActivation(ctx context.Context, app *webapp.App) (bool, string, error)
	SetForceUpdate(ctx context.Context, appID, packageName string) error
	OnDeliveryComplete(ctx context.Context, appID string, outcome delivery.Outcome) error
	Status(ctx context.Context, appID string) (*coordinator.AppStatus, error)
	Forget(ctx context.Context, appID string) error
	CheckReadiness(ctx context.Context) error
}

// PromptQueue lists and answers identity update prompts
type PromptQueue interface {
	List() []dialog.Pending
	Resolve(appID string, action dialog.Action) error
}

// DeviceUpdater receives device state changes for the delivery job constraints
type DeviceUpdater interface {
	Set(state schedule.DeviceState)
}

// Routes defines the routes for the update API with dependency injection
type Routes struct {
	service UpdateService
	prompts PromptQueue
	device  DeviceUpdater
}

// NewRoutes creates a new Routes instance
func NewRoutes(svc UpdateService, prompts PromptQueue, device DeviceUpdater) *Routes {
	return &Routes{
		service: svc,
		prompts: prompts,
		device:  device,
	}
}

// Router creates a new router for the update API
func Router(svc UpdateService, prompts PromptQueue, device DeviceUpdater) http.Handler {
	routes := NewRoutes(svc, prompts, device)

	r := chi.NewRouter()

	r.Route("/apps/{appID}", func(r chi.Router) {
		r.Get("/", routes.getApp)
		r.Delete("/", routes.deleteApp)
		r.Post("/activations", routes.activate)
		r.Post("/force-update", routes.forceUpdate)
		r.Post("/delivery-result", routes.deliveryResult)
	})

	r.Get("/prompts", routes.listPrompts)
	r.Post("/prompts/{appID}/decision", routes.decide)

	r.Put("/device", routes.setDevice)

	return r
}

// activate handles POST /v1/apps/{appID}/activations
func (rr *Routes) activate(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}

	var app webapp.App
	if !decodeBody(w, r, &app) {
		return
	}
	if app.ID == "" {
		app.ID = appID
	}
	if app.ID != appID {
		common.WriteErrorResponse(w, "app id in body does not match the path", http.StatusBadRequest)
		return
	}
	if app.PackageName == "" {
		common.WriteErrorResponse(w, "packageName is required", http.StatusBadRequest)
		return
	}

	started, reason, err := rr.service.OnActivation(r.Context(), &app)
	if err != nil {
		rr.writeServiceError(w, appID, "activate app", err)
		return
	}

	common.WriteJSONResponse(w, ActivationResponse{Started: started, Reason: reason}, http.StatusAccepted)
}

// forceUpdate handles POST /v1/apps/{appID}/force-update
func (rr *Routes) forceUpdate(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}

	var req ForceUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PackageName == "" {
		common.WriteErrorResponse(w, "packageName is required", http.StatusBadRequest)
		return
	}

	if err := rr.service.SetForceUpdate(r.Context(), appID, req.PackageName); err != nil {
		rr.writeServiceError(w, appID, "force update", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getApp handles GET /v1/apps/{appID}
func (rr *Routes) getApp(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}

	status, err := rr.service.Status(r.Context(), appID)
	if err != nil {
		rr.writeServiceError(w, appID, "get app status", err)
		return
	}
	common.WriteJSONResponse(w, status, http.StatusOK)
}

// deleteApp handles DELETE /v1/apps/{appID}
func (rr *Routes) deleteApp(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}

	if err := rr.service.Forget(r.Context(), appID); err != nil {
		rr.writeServiceError(w, appID, "forget app", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deliveryResult handles POST /v1/apps/{appID}/delivery-result
func (rr *Routes) deliveryResult(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}

	var req DeliveryResultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := delivery.ParseResult(req.Result)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome := delivery.Outcome{Result: result, RelaxUpdates: req.RelaxUpdates, Path: req.Path}
	if err := rr.service.OnDeliveryComplete(r.Context(), appID, outcome); err != nil {
		rr.writeServiceError(w, appID, "complete delivery", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listPrompts handles GET /v1/prompts
func (rr *Routes) listPrompts(w http.ResponseWriter, _ *http.Request) {
	prompts := rr.prompts.List()
	if prompts == nil {
		prompts = []dialog.Pending{}
	}
	common.WriteJSONResponse(w, PromptListResponse{Prompts: prompts}, http.StatusOK)
}

// decide handles POST /v1/prompts/{appID}/decision
func (rr *Routes) decide(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}

	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	action, err := dialog.ParseAction(req.Action)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rr.prompts.Resolve(appID, action); err != nil {
		if errors.Is(err, dialog.ErrNoPendingPrompt) {
			common.WriteErrorResponse(w, "no pending prompt for app", http.StatusNotFound)
			return
		}
		slog.Error("Failed to resolve prompt", "app_id", appID, "error", err)
		common.WriteErrorResponse(w, "failed to resolve prompt", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setDevice handles PUT /v1/device
func (rr *Routes) setDevice(w http.ResponseWriter, r *http.Request) {
	var state schedule.DeviceState
	if !decodeBody(w, r, &state) {
		return
	}
	rr.device.Set(state)
	w.WriteHeader(http.StatusNoContent)
}

func (*Routes) writeServiceError(w http.ResponseWriter, appID, op string, err error) {
	switch {
	case errors.Is(err, record.ErrNotFound):
		common.WriteErrorResponse(w, "app not found", http.StatusNotFound)
	case errors.Is(err, coordinator.ErrNoPendingDelivery):
		common.WriteErrorResponse(w, "no matching delivery is outstanding", http.StatusConflict)
	case errors.Is(err, coordinator.ErrClosed):
		common.WriteErrorResponse(w, "service is shutting down", http.StatusServiceUnavailable)
	default:
		slog.Error("Failed to "+op, "app_id", appID, "error", err)
		common.WriteErrorResponse(w, "failed to "+op, http.StatusInternalServerError)
	}
}

func appIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	appID, err := common.PathParam(r, "appID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return appID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		common.WriteErrorResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
