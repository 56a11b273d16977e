package webui

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/davecgh/go-spew/spew"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type debugData struct {
	Title string
	Pre   string
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func writeDebugData(w http.ResponseWriter, title string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   dumper.Sdump(data),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var data interface{}
	var title string
	var err error

	switch query.Get("dataType") {
	case "summary":
		data, err = webUI.Catalog.Summary()
		title = "Run summary"
	case "layers":
		data, err = webUI.Catalog.Layers()
		title = "Layers"
	case "layer":
		name := query.Get("name")
		title = "Layer " + name
		fc, layerErr := webUI.Catalog.Layer(name)
		if layerErr != nil {
			err = layerErr
			break
		}
		data = fc.ExtraMembers
		if len(fc.Features) > 0 {
			data = map[string]interface{}{
				"members":  fc.ExtraMembers,
				"features": len(fc.Features),
				"first":    fc.Features[0].Properties,
			}
		}
	case "config":
		data = webUI.Config
		title = "Preview server configuration"
	default:
		data = map[string]string{
			"error": "Please use one of the following: summary, layers, layer (with name), config.",
		}
		title = "Choose a data type"
	}

	if err != nil {
		data = map[string]string{"error": err.Error()}
	}

	writeDebugData(w, title, data)
}
