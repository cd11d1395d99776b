package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// Session value keys. Values round-trip through JSON, so numbers come back
// as float64; read them through sessionInt64.
const (
	sessionKeyUserID    = "user_id"
	sessionKeyUserEmail = "user_email"
	sessionKeyAuthAt    = "authenticated_at"
	sessionKeyCSRF      = "csrf_token"
	sessionKeyRedirect  = "after_login_redirect"
)

// DBSessionStore is a sessions.Store that keeps all session values
// server-side and hands the browser only a signed session ID. Unknown or
// expired IDs are never adopted: the request gets a fresh session instead
// (strict mode).
type DBSessionStore struct {
	db       DB
	Codecs   []securecookie.Codec
	Options  *sessions.Options
	lifetime time.Duration
}

func NewDBSessionStore(db DB, opts *sessions.Options, keyPairs ...[]byte) *DBSessionStore {
	return &DBSessionStore{
		db:       db,
		Codecs:   securecookie.CodecsFromPairs(keyPairs...),
		Options:  opts,
		lifetime: time.Duration(opts.MaxAge) * time.Second,
	}
}

func (s *DBSessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

func (s *DBSessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.Codecs...); err != nil {
		return session, nil
	}
	data, err := s.db.LoadSession(id)
	if err != nil {
		return session, err
	}
	if data == nil {
		return session, nil
	}
	values, err := decodeSessionValues(data)
	if err != nil {
		return session, nil
	}
	session.ID = id
	session.Values = values
	session.IsNew = false
	return session, nil
}

func (s *DBSessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.db.DeleteSession(session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	data, err := encodeSessionValues(session.Values)
	if err != nil {
		return err
	}
	if err := s.db.SaveSession(session.ID, data, time.Now().Add(s.lifetime)); err != nil {
		return err
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func encodeSessionValues(values map[interface{}]interface{}) ([]byte, error) {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if ks, ok := k.(string); ok {
			out[ks] = v
		}
	}
	return json.Marshal(out)
}

func decodeSessionValues(data []byte) (map[interface{}]interface{}, error) {
	var in map[string]interface{}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	out := make(map[interface{}]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out, nil
}

func sessionInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

// sessionContext is the per-request session handle passed through the auth
// flows; handlers never touch session storage directly.
type sessionContext struct {
	s     *sessions.Session
	store *DBSessionStore
}

func (a *App) session(r *http.Request) (*sessionContext, error) {
	s, err := a.sessions.Get(r, a.cfg.SessionName)
	if err != nil {
		return nil, err
	}
	return &sessionContext{s: s, store: a.sessions}, nil
}

func (sc *sessionContext) CurrentUserID() (int64, bool) {
	return sessionInt64(sc.s.Values[sessionKeyUserID])
}

func (sc *sessionContext) UserEmail() string {
	email, _ := sc.s.Values[sessionKeyUserEmail].(string)
	return email
}

// Establish records the authenticated identity. Callers must Regenerate
// first so the pre-authentication session ID is never carried across the
// privilege change.
func (sc *sessionContext) Establish(u *User) {
	sc.s.Values[sessionKeyUserID] = u.ID
	sc.s.Values[sessionKeyUserEmail] = u.Email
	sc.s.Values[sessionKeyAuthAt] = time.Now().Unix()
}

// Regenerate invalidates the current server-side session record and clears
// the ID so the next Save issues a fresh one with the values intact.
func (sc *sessionContext) Regenerate() {
	if sc.s.ID != "" {
		_ = sc.store.db.DeleteSession(sc.s.ID)
	}
	sc.s.ID = ""
}

// Destroy clears all values, removes the server-side record and expires the
// cookie immediately.
func (sc *sessionContext) Destroy(r *http.Request, w http.ResponseWriter) error {
	for k := range sc.s.Values {
		delete(sc.s.Values, k)
	}
	sc.s.Options.MaxAge = -1
	return sc.s.Save(r, w)
}

func (sc *sessionContext) Save(r *http.Request, w http.ResponseWriter) error {
	return sc.s.Save(r, w)
}

func (sc *sessionContext) SetRedirectTarget(path string) {
	sc.s.Values[sessionKeyRedirect] = path
}

// PopRedirectTarget removes and returns the stored post-login target,
// falling back to def.
func (sc *sessionContext) PopRedirectTarget(def string) string {
	target, ok := sc.s.Values[sessionKeyRedirect].(string)
	delete(sc.s.Values, sessionKeyRedirect)
	if !ok || target == "" {
		return def
	}
	return target
}
