// Package webui serves a plain-text debug view of the latest pipeline run.
package webui

import "flowmap.citybikes.dev/internal/app"

type WebUI struct {
	*app.Application
}

func New(application *app.Application) *WebUI {
	return &WebUI{Application: application}
}
