package main

import (
	"net/http"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/julienschmidt/httprouter"
)

func (a *api) info(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, models.Info{
		Name:    a.cfg.ServiceName,
		Version: a.cfg.AppVersion,
	})
}
