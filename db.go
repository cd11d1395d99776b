package main

import (
	"database/sql"
	"strings"
	"sync"
	"time"
)

// DB interface for database operations. Lookups return (nil, nil) when the
// row does not exist; errors are reserved for store failures.
type DB interface {
	Init() error
	// User operations
	CreateUser(email, passwordHash string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	MarkLogin(userID int64) error
	// Rate limit operations
	GetRateLimit(action, ip, identifierHash string) (*RateLimitRecord, error)
	InsertRateLimit(action, ip, identifierHash string) error
	ResetRateLimit(id int64) error
	IncrementRateLimit(id int64, maxAttempts int) (bool, error)
	DeleteRateLimit(action, ip, identifierHash string) error
	// Audit operations
	InsertSecurityEvent(eventType string, userID *int64, ip, userAgent, metadataJSON string) error
	// Profile operations
	GetProfile(userID int64) (*CustomerProfile, error)
	UpsertProfile(p *CustomerProfile) error
	// Session backend
	LoadSession(id string) ([]byte, error)
	SaveSession(id string, data []byte, expiresAt time.Time) error
	DeleteSession(id string) error
}

// Memory DB

type memSession struct {
	data      []byte
	expiresAt time.Time
}

type MemDB struct {
	mu        sync.Mutex
	users     map[string]*User
	usersByID map[int64]*User
	limits    map[string]*RateLimitRecord
	events    []*SecurityEvent
	profiles  map[int64]*CustomerProfile
	sessions  map[string]memSession
	seq       int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:     map[string]*User{},
		usersByID: map[int64]*User{},
		limits:    map[string]*RateLimitRecord{},
		profiles:  map[int64]*CustomerProfile{},
		sessions:  map[string]memSession{},
		seq:       1,
	}
}

func limitKey(action, ip, identifierHash string) string {
	return action + "|" + ip + "|" + identifierHash
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, ErrDuplicateIdentity
	}
	now := time.Now()
	u := &User{ID: m.seq, Email: email, PasswordHash: passwordHash, Status: StatusActive, CreatedAt: now, UpdatedAt: now}
	m.seq++
	m.users[email] = u
	m.usersByID[u.ID] = u
	return u, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) MarkLogin(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.usersByID[userID]; ok {
		now := time.Now()
		u.LastLoginAt = &now
		u.UpdatedAt = now
	}
	return nil
}

func (m *MemDB) GetRateLimit(action, ip, identifierHash string) (*RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.limits[limitKey(action, ip, identifierHash)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) InsertRateLimit(action, ip, identifierHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := limitKey(action, ip, identifierHash)
	if _, ok := m.limits[key]; ok {
		// concurrent insert already won; treat like ON CONFLICT DO NOTHING
		return nil
	}
	m.limits[key] = &RateLimitRecord{
		ID:             m.seq,
		Action:         action,
		IPAddress:      ip,
		IdentifierHash: identifierHash,
		Attempts:       1,
		WindowStart:    time.Now(),
	}
	m.seq++
	return nil
}

func (m *MemDB) ResetRateLimit(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.limits {
		if rec.ID == id {
			rec.Attempts = 1
			rec.WindowStart = time.Now()
		}
	}
	return nil
}

func (m *MemDB) IncrementRateLimit(id int64, maxAttempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.limits {
		if rec.ID == id && rec.Attempts < maxAttempts {
			rec.Attempts++
			return true, nil
		}
	}
	return false, nil
}

func (m *MemDB) DeleteRateLimit(action, ip, identifierHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limits, limitKey(action, ip, identifierHash))
	return nil
}

func (m *MemDB) InsertSecurityEvent(eventType string, userID *int64, ip, userAgent, metadataJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, &SecurityEvent{
		ID:           m.seq,
		EventType:    eventType,
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		MetadataJSON: metadataJSON,
		CreatedAt:    time.Now(),
	})
	m.seq++
	return nil
}

// Events returns a snapshot of recorded security events, oldest first.
func (m *MemDB) Events() []*SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SecurityEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemDB) GetProfile(userID int64) (*CustomerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) UpsertProfile(p *CustomerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cp := *p
	cp.UpdatedAt = now
	if existing, ok := m.profiles[p.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *MemDB) LoadSession(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.expiresAt) {
		return nil, nil
	}
	return s.data, nil
}

func (m *MemDB) SaveSession(id string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = memSession{data: data, expiresAt: expiresAt}
	return nil
}

func (m *MemDB) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// SQLite DB

type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, email TEXT UNIQUE NOT NULL, password_hash TEXT NOT NULL, status TEXT NOT NULL DEFAULT 'active', last_login_at TEXT, created_at TEXT, updated_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS auth_rate_limits (id INTEGER PRIMARY KEY AUTOINCREMENT, action TEXT NOT NULL, ip_address TEXT NOT NULL, identifier_hash TEXT NOT NULL, attempts INTEGER NOT NULL DEFAULT 1, window_start INTEGER NOT NULL, created_at TEXT, updated_at TEXT, UNIQUE(action, ip_address, identifier_hash));`,
		`CREATE TABLE IF NOT EXISTS security_events (id INTEGER PRIMARY KEY AUTOINCREMENT, event_type TEXT NOT NULL, user_id INTEGER, ip_address TEXT NOT NULL, user_agent TEXT NOT NULL, metadata_json TEXT NOT NULL DEFAULT '{}', created_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS customer_profiles (user_id INTEGER PRIMARY KEY, full_name TEXT NOT NULL, phone TEXT NOT NULL, country TEXT NOT NULL, city TEXT NOT NULL, address_line1 TEXT NOT NULL, address_line2 TEXT, company TEXT, id_type TEXT, id_number TEXT, date_of_birth TEXT, created_at TEXT, updated_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, data BLOB NOT NULL, created_at TEXT, updated_at TEXT, expires_at INTEGER NOT NULL);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

func (s *SQLiteDB) CreateUser(email, passwordHash string) (*User, error) {
	res, err := s.db.Exec(`INSERT INTO users(email,password_hash,status,created_at,updated_at) VALUES(?,?,?,datetime('now'),datetime('now'))`, email, passwordHash, string(StatusActive))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Email: email, PasswordHash: passwordHash, Status: StatusActive}, nil
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow(`SELECT id,email,password_hash,status,last_login_at FROM users WHERE email = ?`, email)
	var u User
	var status string
	var lastLogin sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &status, &lastLogin); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Status = UserStatus(status)
	if lastLogin.Valid {
		if t, err := time.Parse(sqliteTimeLayout, lastLogin.String); err == nil {
			u.LastLoginAt = &t
		}
	}
	return &u, nil
}

func (s *SQLiteDB) MarkLogin(userID int64) error {
	_, err := s.db.Exec(`UPDATE users SET last_login_at = datetime('now'), updated_at = datetime('now') WHERE id = ?`, userID)
	return err
}

func (s *SQLiteDB) GetRateLimit(action, ip, identifierHash string) (*RateLimitRecord, error) {
	row := s.db.QueryRow(`SELECT id,attempts,window_start FROM auth_rate_limits WHERE action = ? AND ip_address = ? AND identifier_hash = ?`, action, ip, identifierHash)
	var rec RateLimitRecord
	var windowStart int64
	if err := row.Scan(&rec.ID, &rec.Attempts, &windowStart); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.Action, rec.IPAddress, rec.IdentifierHash = action, ip, identifierHash
	rec.WindowStart = time.Unix(windowStart, 0)
	return &rec, nil
}

func (s *SQLiteDB) InsertRateLimit(action, ip, identifierHash string) error {
	_, err := s.db.Exec(`INSERT INTO auth_rate_limits(action,ip_address,identifier_hash,attempts,window_start,created_at,updated_at) VALUES(?,?,?,1,?,datetime('now'),datetime('now')) ON CONFLICT(action,ip_address,identifier_hash) DO NOTHING`, action, ip, identifierHash, time.Now().Unix())
	return err
}

func (s *SQLiteDB) ResetRateLimit(id int64) error {
	_, err := s.db.Exec(`UPDATE auth_rate_limits SET attempts = 1, window_start = ?, updated_at = datetime('now') WHERE id = ?`, time.Now().Unix(), id)
	return err
}

func (s *SQLiteDB) IncrementRateLimit(id int64, maxAttempts int) (bool, error) {
	res, err := s.db.Exec(`UPDATE auth_rate_limits SET attempts = attempts + 1, updated_at = datetime('now') WHERE id = ? AND attempts < ?`, id, maxAttempts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteDB) DeleteRateLimit(action, ip, identifierHash string) error {
	_, err := s.db.Exec(`DELETE FROM auth_rate_limits WHERE action = ? AND ip_address = ? AND identifier_hash = ?`, action, ip, identifierHash)
	return err
}

func (s *SQLiteDB) InsertSecurityEvent(eventType string, userID *int64, ip, userAgent, metadataJSON string) error {
	_, err := s.db.Exec(`INSERT INTO security_events(event_type,user_id,ip_address,user_agent,metadata_json,created_at) VALUES(?,?,?,?,?,datetime('now'))`, eventType, userID, ip, userAgent, metadataJSON)
	return err
}

func (s *SQLiteDB) GetProfile(userID int64) (*CustomerProfile, error) {
	row := s.db.QueryRow(`SELECT user_id,full_name,phone,country,city,address_line1,address_line2,company,id_type,id_number,date_of_birth FROM customer_profiles WHERE user_id = ?`, userID)
	var p CustomerProfile
	var line2, company, idType, idNumber, dob sql.NullString
	if err := row.Scan(&p.UserID, &p.FullName, &p.Phone, &p.Country, &p.City, &p.AddressLine1, &line2, &company, &idType, &idNumber, &dob); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.AddressLine2, p.Company, p.IDType, p.IDNumber, p.DateOfBirth = line2.String, company.String, idType.String, idNumber.String, dob.String
	return &p, nil
}

func (s *SQLiteDB) UpsertProfile(p *CustomerProfile) error {
	_, err := s.db.Exec(`INSERT INTO customer_profiles(user_id,full_name,phone,country,city,address_line1,address_line2,company,id_type,id_number,date_of_birth,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,datetime('now'),datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			full_name = excluded.full_name,
			phone = excluded.phone,
			country = excluded.country,
			city = excluded.city,
			address_line1 = excluded.address_line1,
			address_line2 = excluded.address_line2,
			company = excluded.company,
			id_type = excluded.id_type,
			id_number = excluded.id_number,
			date_of_birth = excluded.date_of_birth,
			updated_at = datetime('now')`,
		p.UserID, p.FullName, p.Phone, p.Country, p.City, p.AddressLine1,
		nullEmpty(p.AddressLine2), nullEmpty(p.Company), nullEmpty(p.IDType), nullEmpty(p.IDNumber), nullEmpty(p.DateOfBirth))
	return err
}

func (s *SQLiteDB) LoadSession(id string) ([]byte, error) {
	row := s.db.QueryRow(`SELECT data FROM sessions WHERE id = ? AND expires_at > ?`, id, time.Now().Unix())
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *SQLiteDB) SaveSession(id string, data []byte, expiresAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sessions(id,data,created_at,updated_at,expires_at) VALUES(?,?,datetime('now'),datetime('now'),?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = datetime('now'), expires_at = excluded.expires_at`, id, data, expiresAt.Unix())
	return err
}

func (s *SQLiteDB) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func nullEmpty(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
