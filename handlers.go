package main

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRedirectAfterLogin = "/launch"

// postString reads a trimmed form value capped at maxLen runes.
func postString(r *http.Request, key string, maxLen int) string {
	v := strings.TrimSpace(r.PostFormValue(key))
	if runes := []rune(v); len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return v
}

// renderAuthPage issues the CSRF token and saves the session before writing
// the body, so a token minted for this render survives into the next POST.
func (a *App) renderAuthPage(w http.ResponseWriter, r *http.Request, sc *sessionContext, name string, status int, data *pageData) {
	token, err := sc.CSRFToken()
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if err := sc.Save(r, w); err != nil {
		a.serverError(w, r, err)
		return
	}
	data.CSRFToken = token
	a.renderPage(w, name, status, data)
}

func (a *App) HandleIndex(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, "index.html", http.StatusOK, &pageData{})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	sc, err := a.session(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		a.renderAuthPage(w, r, sc, "login.html", http.StatusOK, &pageData{})
		return
	}

	email := normalizeEmail(postString(r, "email", 190))
	password := r.PostFormValue("password")

	var errs []string
	if !sc.VerifyCSRF(r.PostFormValue("csrf_token")) {
		errs = append(errs, msgInvalidCSRF)
	}
	if !validEmail(email) {
		// same message as a failed credential check, so the response does
		// not reveal which part was wrong
		errs = append(errs, msgInvalidCredentials)
	}

	identifier := email
	if identifier == "" {
		identifier = clientIP(r)
	}
	blocked, err := a.limiter.CheckAndIncrement(ActionLogin, identifier, clientIP(r),
		a.cfg.LoginRateLimitMax, time.Duration(a.cfg.LoginRateLimitWindow)*time.Second)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if blocked {
		errs = append(errs, msgRateLimited)
	}

	if len(errs) == 0 {
		user, err := a.DB.GetUserByEmail(email)
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		switch {
		case user == nil || !comparePassword(user.PasswordHash, password):
			// missing account and wrong password are indistinguishable
			errs = append(errs, msgInvalidCredentials)
			a.audit.Record(r, eventLoginFailed, nil, map[string]interface{}{"email": email})
		case !user.Status.CanLogin():
			errs = append(errs, msgAccountInactive)
			a.audit.Record(r, eventLoginBlockedStatus, &user.ID, nil)
		default:
			if err := a.limiter.Clear(ActionLogin, email, clientIP(r)); err != nil {
				a.log.Warn("rate limit clear failed", zap.String("email", email), zap.Error(err))
			}
			target := sc.PopRedirectTarget(defaultRedirectAfterLogin)
			sc.Regenerate()
			sc.Establish(user)
			if err := a.DB.MarkLogin(user.ID); err != nil {
				a.log.Warn("last login update failed", zap.Int64("user_id", user.ID), zap.Error(err))
			}
			a.audit.Record(r, eventLoginSuccess, &user.ID, nil)
			if err := sc.Save(r, w); err != nil {
				a.serverError(w, r, err)
				return
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
	}

	a.renderAuthPage(w, r, sc, "login.html", http.StatusUnprocessableEntity, &pageData{Errors: errs, Email: email})
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	sc, err := a.session(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		a.renderAuthPage(w, r, sc, "register.html", http.StatusOK, &pageData{})
		return
	}

	email := normalizeEmail(postString(r, "email", 190))
	password := r.PostFormValue("password")
	passwordConfirm := r.PostFormValue("password_confirm")

	var errs []string
	if !sc.VerifyCSRF(r.PostFormValue("csrf_token")) {
		errs = append(errs, msgInvalidCSRF)
	}
	if !validEmail(email) {
		errs = append(errs, msgInvalidEmail)
	}
	errs = append(errs, passwordPolicyErrors(password)...)
	if password != passwordConfirm {
		errs = append(errs, "Password confirmation does not match.")
	}

	if len(errs) == 0 {
		hashed, err := hashPassword(password)
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		user, err := a.DB.CreateUser(email, hashed)
		switch {
		case err == ErrDuplicateIdentity:
			errs = append(errs, msgDuplicateEmail)
		case err != nil:
			a.serverError(w, r, err)
			return
		default:
			sc.Regenerate()
			sc.Establish(user)
			a.audit.Record(r, eventRegistration, &user.ID, map[string]interface{}{"email": email})
			if err := sc.Save(r, w); err != nil {
				a.serverError(w, r, err)
				return
			}
			http.Redirect(w, r, "/profile", http.StatusSeeOther)
			return
		}
	}

	a.renderAuthPage(w, r, sc, "register.html", http.StatusUnprocessableEntity, &pageData{Errors: errs, Email: email})
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sc, err := a.session(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if uid, ok := sc.CurrentUserID(); ok {
		a.audit.Record(r, eventLogout, &uid, nil)
	}
	if err := sc.Destroy(r, w); err != nil {
		a.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
