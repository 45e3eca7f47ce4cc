package main

import (
	"net/http"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/julienschmidt/httprouter"
)

const emailVerificationSent = "A new verification email has been sent"

var okResponse = models.Response{Response: "Ok"}

// POST /respondents
func (a *api) postRespondent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body models.PostRespondent
	if err := readJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondent, err := a.accounts.RegisterRespondent(r.Context(), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondent)
}

// PUT /respondents/email
func (a *api) putChangeEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body models.ChangeEmail
	if err := readJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondent, err := a.accounts.ChangeEmail(r.Context(), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondent)
}

// PUT /respondents/change_password/{token}
func (a *api) putChangePassword(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var body models.ChangePassword
	if err := readJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.accounts.ChangePassword(r.Context(), p.ByName("token"), body); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

// POST /respondents/request_password_change
func (a *api) postRequestPasswordChange(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body models.PasswordResetRequest
	if err := readJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.accounts.RequestPasswordChange(r.Context(), body); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

// PUT /emailverification/{token}
func (a *api) putEmailVerification(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	respondent, err := a.accounts.VerifyEmail(r.Context(), p.ByName("token"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondent)
}

// GET /resend-verification-email/{party_uuid}
func (a *api) getResendVerificationEmail(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := a.accounts.ResendVerificationEmail(r.Context(), p.ByName("party_uuid")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Message{Message: emailVerificationSent})
}

// GET /tokens/verify/{token}
func (a *api) getVerifyToken(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := a.accounts.VerifyToken(r.Context(), p.ByName("token")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}
