package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/lintang-b-s/transitx/pkg/util"
	"go.uber.org/zap"
)

type envelope map[string]interface{}

func (api *trackerAPI) writeJSON(w http.ResponseWriter, status int,
	data envelope, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
	return nil
}

func (api *trackerAPI) errorResponse(w http.ResponseWriter, r *http.Request,
	status int, message interface{}) {
	env := envelope{"error": map[string]interface{}{
		"code":    http.StatusText(status),
		"message": message,
	}}
	if err := api.writeJSON(w, status, env, nil); err != nil {
		api.log.Error("write error response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (api *trackerAPI) BadRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (api *trackerAPI) NotFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.errorResponse(w, r, http.StatusNotFound, err.Error())
}

func (api *trackerAPI) ServerErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.log.Error("internal server error", zap.Error(err),
		zap.String("path", r.URL.Path))
	api.errorResponse(w, r, http.StatusInternalServerError, util.MessageInternalServerError)
}

func (api *trackerAPI) getStatusCode(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *util.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Code() {
		case util.ErrNotFound, util.ErrVehicleNotFound, util.ErrBlockNotFound:
			api.NotFoundResponse(w, r, err)
			return
		case util.ErrBadParamInput:
			api.BadRequestResponse(w, r, err)
			return
		}
	}
	api.ServerErrorResponse(w, r, err)
}

func translateError(err error, trans ut.Translator) []error {
	if err == nil {
		return nil
	}
	var validatorErrs validator.ValidationErrors
	if !errors.As(err, &validatorErrs) {
		return []error{err}
	}
	out := make([]error, 0, len(validatorErrs))
	for _, e := range validatorErrs {
		out = append(out, errors.New(e.Translate(trans)))
	}
	return out
}
