package main

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (p *PostgresDB) CreateUser(email, passwordHash string) (*User, error) {
	var id int64
	err := p.db.QueryRow(`INSERT INTO users(email,password_hash,status,created_at,updated_at) VALUES($1,$2,$3,now(),now()) RETURNING id`, email, passwordHash, string(StatusActive)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	return &User{ID: id, Email: email, PasswordHash: passwordHash, Status: StatusActive}, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	row := p.db.QueryRow(`SELECT id,email,password_hash,status,last_login_at,created_at,updated_at FROM users WHERE email = $1`, email)
	var u User
	var status string
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &status, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Status = UserStatus(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (p *PostgresDB) MarkLogin(userID int64) error {
	_, err := p.db.Exec(`UPDATE users SET last_login_at = now(), updated_at = now() WHERE id = $1`, userID)
	return err
}

func (p *PostgresDB) GetRateLimit(action, ip, identifierHash string) (*RateLimitRecord, error) {
	row := p.db.QueryRow(`SELECT id,attempts,window_start FROM auth_rate_limits WHERE action = $1 AND ip_address = $2 AND identifier_hash = $3`, action, ip, identifierHash)
	var rec RateLimitRecord
	if err := row.Scan(&rec.ID, &rec.Attempts, &rec.WindowStart); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.Action, rec.IPAddress, rec.IdentifierHash = action, ip, identifierHash
	return &rec, nil
}

func (p *PostgresDB) InsertRateLimit(action, ip, identifierHash string) error {
	_, err := p.db.Exec(`INSERT INTO auth_rate_limits(action,ip_address,identifier_hash,attempts,window_start,created_at,updated_at) VALUES($1,$2,$3,1,now(),now(),now()) ON CONFLICT (action,ip_address,identifier_hash) DO NOTHING`, action, ip, identifierHash)
	return err
}

func (p *PostgresDB) ResetRateLimit(id int64) error {
	_, err := p.db.Exec(`UPDATE auth_rate_limits SET attempts = 1, window_start = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

// IncrementRateLimit bumps the attempt counter only while it is below
// maxAttempts; the condition runs inside the UPDATE so two concurrent
// requests cannot push the counter past the cap.
func (p *PostgresDB) IncrementRateLimit(id int64, maxAttempts int) (bool, error) {
	res, err := p.db.Exec(`UPDATE auth_rate_limits SET attempts = attempts + 1, updated_at = now() WHERE id = $1 AND attempts < $2`, id, maxAttempts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresDB) DeleteRateLimit(action, ip, identifierHash string) error {
	_, err := p.db.Exec(`DELETE FROM auth_rate_limits WHERE action = $1 AND ip_address = $2 AND identifier_hash = $3`, action, ip, identifierHash)
	return err
}

func (p *PostgresDB) InsertSecurityEvent(eventType string, userID *int64, ip, userAgent, metadataJSON string) error {
	_, err := p.db.Exec(`INSERT INTO security_events(event_type,user_id,ip_address,user_agent,metadata_json,created_at) VALUES($1,$2,$3,$4,$5,now())`, eventType, userID, ip, userAgent, metadataJSON)
	return err
}

func (p *PostgresDB) GetProfile(userID int64) (*CustomerProfile, error) {
	row := p.db.QueryRow(`SELECT user_id,full_name,phone,country,city,address_line1,address_line2,company,id_type,id_number,date_of_birth FROM customer_profiles WHERE user_id = $1`, userID)
	var prof CustomerProfile
	var line2, company, idType, idNumber, dob sql.NullString
	if err := row.Scan(&prof.UserID, &prof.FullName, &prof.Phone, &prof.Country, &prof.City, &prof.AddressLine1, &line2, &company, &idType, &idNumber, &dob); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	prof.AddressLine2, prof.Company, prof.IDType, prof.IDNumber, prof.DateOfBirth = line2.String, company.String, idType.String, idNumber.String, dob.String
	return &prof, nil
}

func (p *PostgresDB) UpsertProfile(prof *CustomerProfile) error {
	_, err := p.db.Exec(`INSERT INTO customer_profiles(user_id,full_name,phone,country,city,address_line1,address_line2,company,id_type,id_number,date_of_birth,created_at,updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			address_line1 = EXCLUDED.address_line1,
			address_line2 = EXCLUDED.address_line2,
			company = EXCLUDED.company,
			id_type = EXCLUDED.id_type,
			id_number = EXCLUDED.id_number,
			date_of_birth = EXCLUDED.date_of_birth,
			updated_at = now()`,
		prof.UserID, prof.FullName, prof.Phone, prof.Country, prof.City, prof.AddressLine1,
		nullEmpty(prof.AddressLine2), nullEmpty(prof.Company), nullEmpty(prof.IDType), nullEmpty(prof.IDNumber), nullEmpty(prof.DateOfBirth))
	return err
}

func (p *PostgresDB) LoadSession(id string) ([]byte, error) {
	row := p.db.QueryRow(`SELECT data FROM sessions WHERE id = $1 AND expires_at > now()`, id)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (p *PostgresDB) SaveSession(id string, data []byte, expiresAt time.Time) error {
	_, err := p.db.Exec(`INSERT INTO sessions(id,data,created_at,updated_at,expires_at) VALUES($1,$2,now(),now(),$3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now(), expires_at = EXCLUDED.expires_at`, id, data, expiresAt)
	return err
}

func (p *PostgresDB) DeleteSession(id string) error {
	_, err := p.db.Exec(`DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
