package restapi

import (
	"errors"
	"net/http"

	"flowmap.citybikes.dev/internal/app"
	"flowmap.citybikes.dev/internal/layers"
	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/utils"
)

func (api *RestAPI) catalogErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNoRun):
		api.noRunResponse(w, r)
	case errors.Is(err, app.ErrLayerNotFound):
		api.notFoundResponse(w, r)
	default:
		api.serverErrorResponse(w, r, err)
	}
}

func (api *RestAPI) layersHandler(w http.ResponseWriter, r *http.Request) {
	infos, err := api.Catalog.Layers()
	if err != nil {
		api.catalogErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewListResponse(infos))
}

// layerHandler returns one layer as GeoJSON. The optional minWeight parameter
// drops features lighter than the given display weight.
func (api *RestAPI) layerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ctx.Err() != nil {
		api.serverErrorResponse(w, r, ctx.Err())
		return
	}

	name := utils.ExtractIDFromParams(r, "name")

	query := r.URL.Query()
	minWeight, fieldErrors := utils.ParseFloatParam(query, "minWeight", nil)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	fc, err := api.Catalog.Layer(name)
	if err != nil {
		api.catalogErrorResponse(w, r, err)
		return
	}

	if query.Has("minWeight") {
		fc = layers.FilterByWeight(fc, minWeight)
	}
	api.sendGeoJSON(w, r, fc)
}

func (api *RestAPI) summaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := api.Catalog.Summary()
	if err != nil {
		api.catalogErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewEntryResponse(summary))
}

func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, models.NewEntryResponse(map[string]string{
		"status": "ok",
		"env":    api.Config.Env.String(),
	}))
}
