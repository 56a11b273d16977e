package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"flowmap.citybikes.dev/internal/models"
)

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response models.ResponseModel) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
}

// sendGeoJSON writes fc unwrapped so renderers can load the URL directly.
func (api *RestAPI) sendGeoJSON(w http.ResponseWriter, r *http.Request, fc *geojson.FeatureCollection) {
	data, err := fc.MarshalJSON()
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}
