package main

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/ONSdigital/ras-party-accounts/account"
	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/Unleash/unleash-client-go/v3"
	"github.com/julienschmidt/httprouter"
)

// featureToggle is the part of the Unleash client the routes need
type featureToggle interface {
	IsEnabled(feature string, options ...unleash.FeatureOption) bool
}

type api struct {
	cfg      Config
	accounts *account.Service
	features featureToggle
	metrics  http.Handler
	logger   *slog.Logger
}

func addRoutes(router *httprouter.Router, a *api) {
	router.GET("/v2/info", a.info)
	router.Handler(http.MethodGet, "/metrics", a.metrics)

	router.POST("/v2/respondents", a.protected("party.api.post.respondents", a.postRespondent))
	router.PUT("/v2/respondents/email", a.protected("party.api.put.respondents.email", a.putChangeEmail))
	router.PUT("/v2/respondents/change_email", a.protected("party.api.put.respondents.email", a.putChangeEmail))
	router.PUT("/v2/respondents/change_password/:token", a.protected("party.api.put.respondents.password", a.putChangePassword))
	router.POST("/v2/respondents/request_password_change", a.protected("party.api.post.respondents.password", a.postRequestPasswordChange))
	router.PUT("/v2/emailverification/:token", a.protected("party.api.put.emailverification", a.putEmailVerification))
	router.GET("/v2/resend-verification-email/:party_uuid", a.protected("party.api.get.resendverification", a.getResendVerificationEmail))
	router.GET("/v2/tokens/verify/:token", a.protected("party.api.get.tokens", a.getVerifyToken))

	router.GET("/v2/respondents", a.protected("party.api.get.respondents", a.getRespondents))
	router.GET("/v2/respondents/ids", a.protected("party.api.get.respondents.ids", a.getRespondentsByIDs))
	router.GET("/v2/respondents/id/:id", a.protected("party.api.get.respondents.id", a.getRespondentByID))
	router.PUT("/v2/respondents/id/:id", a.protected("party.api.put.respondents.id", a.putRespondentDetails))
	router.GET("/v2/respondents/email/:email", a.protected("party.api.get.respondents.email", a.getRespondentByEmail))
	router.DELETE("/v2/respondents/email", a.protected("party.api.delete.respondents", a.deleteRespondent))
	router.DELETE("/v2/respondents/email/:email", a.protected("party.api.delete.respondents.email", a.deleteRespondentByEmail))
	router.DELETE("/v2/batch/respondents", a.protected("party.api.delete.batch.respondents", a.deleteMarkedRespondents))
	router.GET("/v2/respondents/claim", a.protected("party.api.get.respondents.claim", a.getClaim))
}

// protected answers 405 while the feature is toggled off and 401 without the service credentials
func (a *api) protected(feature string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if !a.features.IsEnabled(feature) {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !a.authorised(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="party"`)
			writeJSON(w, http.StatusUnauthorized, models.Error{Error: "Unauthorized"})
			return
		}
		h(w, r, p)
	}
}

func (a *api) authorised(r *http.Request) bool {
	user, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.cfg.SecurityUserName)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.SecurityUserPassword)) == 1
	return userOK && passwordOK
}
