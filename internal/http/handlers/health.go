package handlers

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
	Queue  bool   `json:"queue"`
	GeoIP  bool   `json:"geoip"`
}

// Health is a liveness probe. It also reports which optional adapters are wired.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, healthResponse{Status: "ok", Queue: a.Jobs != nil, GeoIP: a.Geo != nil})
}
