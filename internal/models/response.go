package models

import (
	"net/http"
	"time"
)

// ResponseModel Base response structure that can be reused
type ResponseModel struct {
	Code        int         `json:"code"`
	CurrentTime int64       `json:"currentTime"`
	Data        interface{} `json:"data"`
	Text        string      `json:"text"`
	Version     int         `json:"version"`
}

func NewResponse(code int, data interface{}, text string) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(),
		Data:        data,
		Text:        text,
		Version:     2,
	}
}

// NewListResponse wraps a list in the standard envelope.
func NewListResponse(list interface{}) ResponseModel {
	data := map[string]interface{}{
		"list": list,
	}
	return NewResponse(http.StatusOK, data, "OK")
}

func NewEntryResponse(entry interface{}) ResponseModel {
	data := map[string]interface{}{
		"entry": entry,
	}
	return NewResponse(http.StatusOK, data, "OK")
}

func ResponseCurrentTime() int64 {
	return time.Now().UnixMilli()
}

// LayerInfo describes one rendered layer file.
type LayerInfo struct {
	Name         string     `json:"name"`
	FeatureCount int        `json:"featureCount"`
	Domain       [2]float64 `json:"domain"`
	Path         string     `json:"path"`
}

// RunSummary is written by the pipeline at the end of a run.
type RunSummary struct {
	RunID         string      `json:"runId"`
	StartedAt     time.Time   `json:"startedAt"`
	FinishedAt    time.Time   `json:"finishedAt"`
	Records       int         `json:"records"`
	UniquePairs   int         `json:"uniquePairs"`
	GraphNodes    int         `json:"graphNodes"`
	GraphEdges    int         `json:"graphEdges"`
	RoutesFound   int         `json:"routesFound"`
	RoutesFailed  int         `json:"routesFailed"`
	FailureRate   float64     `json:"failureRate"`
	NetFlowRows   int         `json:"netFlowRows"`
	Layers        []LayerInfo `json:"layers"`
	RoutesPath    string      `json:"routesPath"`
	NetFlowPath   string      `json:"netFlowPath"`
	GraphArtifact string      `json:"graphArtifact"`
}
