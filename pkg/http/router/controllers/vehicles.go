package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/julienschmidt/httprouter"
	helper "github.com/lintang-b-s/transitx/pkg/http/router/routerhelper"
	"go.uber.org/zap"
)

type trackerAPI struct {
	trackerService TrackerService
	log            *zap.Logger
}

func New(trackerService TrackerService, log *zap.Logger) *trackerAPI {
	return &trackerAPI{
		trackerService: trackerService,
		log:            log,
	}
}

func (api *trackerAPI) Routes(group *helper.RouteGroup) {
	group.GET("/vehicles", api.vehicles)
	group.GET("/vehicles/:id", api.vehicle)
	group.GET("/routes/:routeId/vehicles", api.vehiclesForRoute)
	group.GET("/blocks/:blockId/vehicles", api.vehiclesForBlock)
	group.GET("/events", api.events)
	group.POST("/avl", api.injectAvl)
}

func (api *trackerAPI) vehicles(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	snapshots := api.trackerService.Vehicles()
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": snapshots}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func (api *trackerAPI) vehicle(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	vehicleID := p.ByName("id")
	if vehicleID == "" {
		api.BadRequestResponse(w, r, errors.New("vehicle id is required"))
		return
	}

	snapshot, tripPolyline, err := api.trackerService.Vehicle(vehicleID)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	if err := api.writeJSON(w, http.StatusOK,
		envelope{"data": NewVehicleDetailResponse(snapshot, tripPolyline)}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func (api *trackerAPI) vehiclesForRoute(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	routeID := p.ByName("routeId")
	if routeID == "" {
		api.BadRequestResponse(w, r, errors.New("route id is required"))
		return
	}
	snapshots := api.trackerService.VehiclesForRoute(routeID)
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": snapshots}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func (api *trackerAPI) vehiclesForBlock(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	blockID := p.ByName("blockId")
	if blockID == "" {
		api.BadRequestResponse(w, r, errors.New("block id is required"))
		return
	}
	snapshots := api.trackerService.VehiclesForBlock(blockID)
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": snapshots}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func (api *trackerAPI) events(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	events := api.trackerService.RecentEvents()
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": events}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

// injectAvl accepts a single AVL report over HTTP, mainly for testing
// feeds and backfilling. Production reports arrive over NATS.
func (api *trackerAPI) injectAvl(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var request avlReportRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		api.BadRequestResponse(w, r, err)
		return
	}
	if err := r.Body.Close(); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}

	validate := validator.New()
	if err := validate.Struct(request); err != nil {
		english := en.New()
		uni := ut.New(english, english)
		trans, _ := uni.GetTranslator("en")
		_ = enTranslations.RegisterDefaultTranslations(validate, trans)
		vv := translateError(err, trans)
		vvString := []string{}
		for _, v := range vv {
			vvString = append(vvString, v.Error())
		}
		api.BadRequestResponse(w, r, fmt.Errorf("validation error: %v", vvString))
		return
	}

	if err := api.trackerService.InjectAvlReport(request.ToAvlReport()); err != nil {
		api.getStatusCode(w, r, err)
		return
	}
	if err := api.writeJSON(w, http.StatusAccepted, envelope{"data": "accepted"}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}
