package main

import (
	"net/http"
	"regexp"
)

var dateOfBirthRx = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// profileFieldLen returns the cap for a profile field; a few free-text
// fields get the longer limit.
func profileFieldLen(key string) int {
	switch key {
	case "address_line2", "company", "id_number":
		return 255
	default:
		return 120
	}
}

// HandleProfile renders and saves the KYC-lite customer profile. A saved
// profile is what unlocks the dApp behind /launch.
func (a *App) HandleProfile(w http.ResponseWriter, r *http.Request) {
	sc, err := a.session(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	userID, _ := sc.CurrentUserID()

	profile, err := a.DB.GetProfile(userID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if profile == nil {
		profile = &CustomerProfile{UserID: userID}
	}

	if r.Method == http.MethodGet {
		a.renderAuthPage(w, r, sc, "profile.html", http.StatusOK, &pageData{Profile: profile})
		return
	}

	var errs []string
	if !sc.VerifyCSRF(r.PostFormValue("csrf_token")) {
		errs = append(errs, msgInvalidCSRF)
	}

	profile.FullName = postString(r, "full_name", profileFieldLen("full_name"))
	profile.Phone = postString(r, "phone", profileFieldLen("phone"))
	profile.Country = postString(r, "country", profileFieldLen("country"))
	profile.City = postString(r, "city", profileFieldLen("city"))
	profile.AddressLine1 = postString(r, "address_line1", profileFieldLen("address_line1"))
	profile.AddressLine2 = postString(r, "address_line2", profileFieldLen("address_line2"))
	profile.Company = postString(r, "company", profileFieldLen("company"))
	profile.IDType = postString(r, "id_type", profileFieldLen("id_type"))
	profile.IDNumber = postString(r, "id_number", profileFieldLen("id_number"))
	profile.DateOfBirth = postString(r, "date_of_birth", profileFieldLen("date_of_birth"))

	if profile.FullName == "" {
		errs = append(errs, "Full name is required.")
	}
	if profile.Phone == "" {
		errs = append(errs, "Phone number is required.")
	}
	if profile.Country == "" {
		errs = append(errs, "Country is required.")
	}
	if profile.City == "" {
		errs = append(errs, "City is required.")
	}
	if profile.AddressLine1 == "" {
		errs = append(errs, "Address line 1 is required.")
	}
	if profile.DateOfBirth != "" && !dateOfBirthRx.MatchString(profile.DateOfBirth) {
		errs = append(errs, "Date of birth must use YYYY-MM-DD format.")
	}

	if len(errs) > 0 {
		a.renderAuthPage(w, r, sc, "profile.html", http.StatusUnprocessableEntity, &pageData{Errors: errs, Profile: profile})
		return
	}

	if err := a.DB.UpsertProfile(profile); err != nil {
		a.serverError(w, r, err)
		return
	}
	a.audit.Record(r, eventProfileUpdated, &userID, nil)
	a.renderAuthPage(w, r, sc, "profile.html", http.StatusOK, &pageData{Success: true, Profile: profile})
}

// HandleLaunch routes an authenticated user to the dApp, or to the profile
// form when no profile row exists yet.
func (a *App) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	sc, err := a.session(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	userID, _ := sc.CurrentUserID()

	profile, err := a.DB.GetProfile(userID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if profile == nil {
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/app", http.StatusSeeOther)
}

// HandleApp serves the dApp shell; profile gating applies here too so a
// direct hit cannot skip /launch.
func (a *App) HandleApp(w http.ResponseWriter, r *http.Request) {
	sc, err := a.session(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	userID, _ := sc.CurrentUserID()

	profile, err := a.DB.GetProfile(userID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if profile == nil {
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}

	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	a.renderPage(w, "app.html", http.StatusOK, &pageData{UserEmail: sc.UserEmail()})
}
