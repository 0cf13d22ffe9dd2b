package httpserver

import (
	"errors"
	"net/http"

	"loo_review/internal/domain"
)

type sessionView struct {
	SignedIn      bool         `json:"signed_in"`
	User          *domain.User `json:"user,omitempty"`
	TermsAccepted bool         `json:"terms_accepted"`
}

func (h *Handlers) sessionView() sessionView {
	v := sessionView{SignedIn: h.Session.SignedIn(), TermsAccepted: h.Session.TermsAccepted()}
	if u, ok := h.Session.User(); ok {
		v.User = &u
	}
	return v
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.Session.Login(r.Context(), in.Email, in.Password); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FullName        string `json:"full_name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.Session.Register(r.Context(), in.FullName, in.Email, in.Password, in.ConfirmPassword); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.sessionView())
}

func (h *Handlers) google(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Credential string `json:"credential"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.Session.Google(r.Context(), in.Credential); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handlers) apple(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IdentityToken string `json:"identity_token"`
		FullName      string `json:"full_name"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.Session.Apple(r.Context(), in.IdentityToken, in.FullName); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handlers) getTerms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": h.Session.TermsAccepted()})
}

func (h *Handlers) acceptTerms(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.AcceptTerms(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

// writeAuthError reports a failed sign-in with the backend's own message.
func writeAuthError(w http.ResponseWriter, err error) {
	var te *domain.TransportError
	if errors.As(err, &te) && te.Status >= 400 && te.Status < 500 {
		writeProblem(w, http.StatusUnauthorized, "Sign-in failed", te.Message)
		return
	}
	writeError(w, err)
}
