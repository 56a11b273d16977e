package restapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"flowmap.citybikes.dev/internal/app"
	"flowmap.citybikes.dev/internal/appconf"
	"flowmap.citybikes.dev/internal/layers"
	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/pipeline"
)

// writeTestRun leaves one finished run with a single "morning" layer in dir.
func writeTestRun(t *testing.T, dir string) models.RunSummary {
	t.Helper()

	records := []models.FlowRecord{
		{
			GroupedCount: models.GroupedCount{DepartureStationID: 1, ReturnStationID: 2, Time: "08:00:00", Count: 3},
			Route:        orb.LineString{{24.94, 60.17}, {24.95, 60.17}},
		},
		{
			GroupedCount: models.GroupedCount{DepartureStationID: 1, ReturnStationID: 3, Time: "08:00:00", Count: 12},
			Route:        orb.LineString{{24.94, 60.17}, {24.94, 60.18}},
		},
	}
	l := layers.Build(layers.Definition{Name: "morning", Stations: []int64{1}}, records, nil, 0, models.DefaultPrecision)
	info, err := l.Write(filepath.Join(dir, "layers"))
	require.NoError(t, err)

	summary := models.RunSummary{RunID: "run-1", Records: 2, RoutesFound: 2, Layers: []models.LayerInfo{info}}
	require.NoError(t, pipeline.WriteSummary(filepath.Join(dir, pipeline.SummaryFile), summary))
	return summary
}

func createTestApiWithDir(t *testing.T, dir string, rateLimit int) (*RestAPI, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	application := app.New(appconf.Config{
		Env:       appconf.Test,
		RateLimit: rateLimit,
		OutputDir: dir,
	}, logging.NewStructuredLogger(&logs, slog.LevelInfo))

	api := NewRestAPI(application)
	t.Cleanup(api.Shutdown)
	return api, &logs
}

func createTestApi(t *testing.T) *RestAPI {
	dir := t.TempDir()
	writeTestRun(t, dir)
	api, _ := createTestApiWithDir(t, dir, 100)
	return api
}

func testServer(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()

	router := httprouter.New()
	api.SetRoutes(router)
	server := httptest.NewServer(api.Handler(router))
	t.Cleanup(server.Close)
	return server
}

// serveApiAndRetrieveEndpoint requests endpoint from a fresh server and returns
// the response with its body already read.
func serveApiAndRetrieveEndpoint(t *testing.T, api *RestAPI, endpoint string) (*http.Response, []byte) {
	t.Helper()

	server := testServer(t, api)
	resp, err := http.Get(server.URL + endpoint)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeModel(t *testing.T, body []byte) models.ResponseModel {
	t.Helper()

	var model models.ResponseModel
	require.NoError(t, json.Unmarshal(body, &model))
	return model
}
