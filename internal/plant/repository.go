package plant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// Repository is the document-level store for plant entities.
//
// Reads and writes touch exactly one document each. Update methods apply
// the patch atomically and return the document as stored afterwards.
type Repository interface {
	GetFlower(ctx context.Context, id string) (*Flower, error)
	ListFlowers(ctx context.Context) ([]Flower, error)
	CreateFlower(ctx context.Context, f *Flower) error
	UpdateFlower(ctx context.Context, id string, patch FlowerPatch) (*Flower, error)

	GetSmartPotByID(ctx context.Context, id string) (*SmartPot, error)
	GetSmartPotBySerial(ctx context.Context, serial string) (*SmartPot, error)
	ListSmartPots(ctx context.Context) ([]SmartPot, error)
	// ListSmartPotsByActiveFlower returns every pot whose active flower is
	// flowerID. More than one result means the binding is corrupt.
	ListSmartPotsByActiveFlower(ctx context.Context, flowerID string) ([]SmartPot, error)
	CreateSmartPot(ctx context.Context, p *SmartPot) error
	UpdateSmartPot(ctx context.Context, id string, patch SmartPotPatch) (*SmartPot, error)

	GetHousehold(ctx context.Context, id string) (*Household, error)
	CreateHousehold(ctx context.Context, h *Household) error

	GetProfile(ctx context.Context, id string) (*SharedProfile, error)
	CreateProfile(ctx context.Context, p *SharedProfile) error

	// GetUsers returns the users that exist among ids, in the order given.
	// Unknown ids are skipped.
	GetUsers(ctx context.Context, ids []string) ([]User, error)
	CreateUser(ctx context.Context, u *User) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const flowerColumns = `id, household_id, name, profile, profile_id, serial_number, created_at, updated_at`

const smartPotColumns = `id, serial_number, household_id, active_flower_id, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetFlower retrieves a flower by id.
func (r *SQLiteRepository) GetFlower(ctx context.Context, id string) (*Flower, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+flowerColumns+` FROM flowers WHERE id = ?`, id)
	f, err := scanFlower(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlowerNotFound
		}
		return nil, fmt.Errorf("querying flower by id: %w", err)
	}
	return f, nil
}

// ListFlowers returns every flower ordered by id.
func (r *SQLiteRepository) ListFlowers(ctx context.Context) ([]Flower, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+flowerColumns+` FROM flowers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying flowers: %w", err)
	}
	defer rows.Close()

	var flowers []Flower
	for rows.Next() {
		f, err := scanFlower(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning flower: %w", err)
		}
		flowers = append(flowers, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flowers: %w", err)
	}
	return flowers, nil
}

// CreateFlower inserts a flower. ID and timestamps are generated when empty.
func (r *SQLiteRepository) CreateFlower(ctx context.Context, f *Flower) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = "flw-" + uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	profileJSON, err := marshalProfile(f.Profile)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO flowers (`+flowerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.HouseholdID, strings.TrimSpace(f.Name), profileJSON,
		nullableString(f.ProfileID), nullableString(f.SerialNumber),
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting flower: %w", err)
	}
	return nil
}

// UpdateFlower applies patch to a single flower row.
func (r *SQLiteRepository) UpdateFlower(ctx context.Context, id string, patch FlowerPatch) (*Flower, error) {
	var sets []string
	var args []any

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*patch.Name))
	}
	if patch.HouseholdID != nil {
		sets = append(sets, "household_id = ?")
		args = append(args, *patch.HouseholdID)
	}
	if patch.SerialNumber != nil {
		sets = append(sets, "serial_number = ?")
		args = append(args, nullableString(*patch.SerialNumber))
	}
	if len(sets) == 0 {
		return r.GetFlower(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, database.FormatTime(time.Now()), id)

	query := fmt.Sprintf( //nolint:gosec // SET clause built from fixed column names
		`UPDATE flowers SET %s WHERE id = ? RETURNING `+flowerColumns,
		strings.Join(sets, ", "),
	)
	f, err := scanFlower(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlowerNotFound
		}
		return nil, fmt.Errorf("updating flower: %w", err)
	}
	return f, nil
}

// GetSmartPotByID retrieves a smart pot by id.
func (r *SQLiteRepository) GetSmartPotByID(ctx context.Context, id string) (*SmartPot, error) {
	return r.getSmartPot(ctx, "id", id)
}

// GetSmartPotBySerial retrieves a smart pot by its unique serial number.
func (r *SQLiteRepository) GetSmartPotBySerial(ctx context.Context, serial string) (*SmartPot, error) {
	return r.getSmartPot(ctx, "serial_number", serial)
}

func (r *SQLiteRepository) getSmartPot(ctx context.Context, column, value string) (*SmartPot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+smartPotColumns+` FROM smart_pots WHERE `+column+` = ?`, value) //nolint:gosec // column is a constant
	p, err := scanSmartPot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSmartPotNotFound
		}
		return nil, fmt.Errorf("querying smart pot by %s: %w", column, err)
	}
	return p, nil
}

// ListSmartPots returns every smart pot ordered by id.
func (r *SQLiteRepository) ListSmartPots(ctx context.Context) ([]SmartPot, error) {
	return r.querySmartPots(ctx, `SELECT `+smartPotColumns+` FROM smart_pots ORDER BY id`)
}

// ListSmartPotsByActiveFlower returns the pots pointing at flowerID.
func (r *SQLiteRepository) ListSmartPotsByActiveFlower(ctx context.Context, flowerID string) ([]SmartPot, error) {
	return r.querySmartPots(ctx,
		`SELECT `+smartPotColumns+` FROM smart_pots WHERE active_flower_id = ? ORDER BY id`, flowerID)
}

func (r *SQLiteRepository) querySmartPots(ctx context.Context, query string, args ...any) ([]SmartPot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying smart pots: %w", err)
	}
	defer rows.Close()

	var pots []SmartPot
	for rows.Next() {
		p, err := scanSmartPot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning smart pot: %w", err)
		}
		pots = append(pots, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating smart pots: %w", err)
	}
	return pots, nil
}

// CreateSmartPot inserts a smart pot. Returns ErrExists when the serial is taken.
func (r *SQLiteRepository) CreateSmartPot(ctx context.Context, p *SmartPot) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = "pot-" + uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO smart_pots (`+smartPotColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.SerialNumber, p.HouseholdID, nullableString(p.ActiveFlowerID),
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting smart pot: %w", err)
	}
	return nil
}

// UpdateSmartPot applies patch to a single smart pot row.
func (r *SQLiteRepository) UpdateSmartPot(ctx context.Context, id string, patch SmartPotPatch) (*SmartPot, error) {
	var sets []string
	var args []any

	if patch.HouseholdID != nil {
		sets = append(sets, "household_id = ?")
		args = append(args, *patch.HouseholdID)
	}
	if patch.ActiveFlowerID != nil {
		sets = append(sets, "active_flower_id = ?")
		args = append(args, nullableString(*patch.ActiveFlowerID))
	}
	if len(sets) == 0 {
		return r.GetSmartPotByID(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, database.FormatTime(time.Now()), id)

	query := fmt.Sprintf( //nolint:gosec // SET clause built from fixed column names
		`UPDATE smart_pots SET %s WHERE id = ? RETURNING `+smartPotColumns,
		strings.Join(sets, ", "),
	)
	p, err := scanSmartPot(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSmartPotNotFound
		}
		return nil, fmt.Errorf("updating smart pot: %w", err)
	}
	return p, nil
}

// GetHousehold retrieves a household with its member list.
func (r *SQLiteRepository) GetHousehold(ctx context.Context, id string) (*Household, error) {
	var h Household
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at, updated_at FROM households WHERE id = ?`, id,
	).Scan(&h.ID, &h.Name, &h.OwnerID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHouseholdNotFound
		}
		return nil, fmt.Errorf("querying household: %w", err)
	}
	h.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // written by us
	h.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // written by us

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM household_members WHERE household_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying household members: %w", err)
	}
	defer rows.Close()

	h.Members = []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scanning household member: %w", err)
		}
		h.Members = append(h.Members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating household members: %w", err)
	}
	return &h, nil
}

// CreateHousehold inserts a household and its members.
func (r *SQLiteRepository) CreateHousehold(ctx context.Context, h *Household) error {
	if strings.TrimSpace(h.Name) == "" || h.OwnerID == "" {
		return fmt.Errorf("plant: household name and owner_id are required")
	}
	if h.ID == "" {
		h.ID = "hh-" + uuid.NewString()
	}
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO households (id, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		h.ID, h.Name, h.OwnerID, database.FormatTime(now), database.FormatTime(now),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting household: %w", err)
	}

	for _, member := range h.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO household_members (household_id, user_id) VALUES (?, ?)`,
			h.ID, member,
		); err != nil {
			return fmt.Errorf("inserting household member %s: %w", member, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing household: %w", err)
	}
	return nil
}

// GetProfile retrieves a shared profile by id.
func (r *SQLiteRepository) GetProfile(ctx context.Context, id string) (*SharedProfile, error) {
	var p SharedProfile
	var householdID sql.NullString
	var ranges, createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, household_id, ranges, created_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &householdID, &ranges, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	if err := json.Unmarshal([]byte(ranges), &p.Ranges); err != nil {
		return nil, fmt.Errorf("unmarshalling profile ranges: %w", err)
	}
	p.HouseholdID = householdID.String
	p.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // written by us
	return &p, nil
}

// CreateProfile inserts a shared profile.
func (r *SQLiteRepository) CreateProfile(ctx context.Context, p *SharedProfile) error {
	if err := p.Ranges.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = "prf-" + uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	ranges, err := json.Marshal(p.Ranges)
	if err != nil {
		return fmt.Errorf("marshalling profile ranges: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, household_id, ranges, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullableString(p.HouseholdID), string(ranges), database.FormatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting profile: %w", err)
	}
	return nil
}

// GetUsers returns the known users among ids, preserving the order of ids.
func (r *SQLiteRepository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id IN (`+placeholders+`)`, //nolint:gosec // placeholders only
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]User, len(ids))
	for rows.Next() {
		var u User
		var email sql.NullString
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &email, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.Email = email.String
		u.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // written by us
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	users := make([]User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
			delete(byID, id)
		}
	}
	return users, nil
}

// CreateUser inserts a directory entry.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *User) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("plant: user name is required")
	}
	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, nullableString(u.Email), database.FormatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func scanFlower(row rowScanner) (*Flower, error) {
	var f Flower
	var profile, profileID, serial sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&f.ID, &f.HouseholdID, &f.Name, &profile, &profileID, &serial, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if profile.Valid && profile.String != "" {
		f.Profile = &Profile{}
		if err := json.Unmarshal([]byte(profile.String), f.Profile); err != nil {
			return nil, fmt.Errorf("unmarshalling flower profile: %w", err)
		}
	}
	f.ProfileID = profileID.String
	f.SerialNumber = serial.String
	f.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // written by us
	f.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // written by us
	return &f, nil
}

func scanSmartPot(row rowScanner) (*SmartPot, error) {
	var p SmartPot
	var activeFlower sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&p.ID, &p.SerialNumber, &p.HouseholdID, &activeFlower, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.ActiveFlowerID = activeFlower.String
	p.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // written by us
	p.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // written by us
	return &p, nil
}

func marshalProfile(p *Profile) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshalling flower profile: %w", err)
	}
	return string(b), nil
}

// nullableString maps "" to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
