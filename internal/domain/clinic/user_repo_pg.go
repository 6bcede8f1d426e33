package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicrecords/records/internal/platform/db"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// constraints maps schema constraint names to client-facing messages.
var constraints = db.ConstraintMessages{
	"app_user_email_key":             "a user with this email already exists",
	"doctor_license_number_key":      "a doctor with this license number already exists",
	"doctor_pkey":                    "user already has a doctor profile",
	"patient_pkey":                   "user already has a patient profile",
	"doctor_user_id_fkey":            "user not found",
	"patient_user_id_fkey":           "user not found",
	"medical_record_patient_id_fkey": "referenced patient does not exist",
	"medical_record_doctor_id_fkey":  "referenced doctor does not exist",
}

func userCols(alias string) string {
	return fmt.Sprintf("%[1]s.id, %[1]s.email, %[1]s.name, %[1]s.role, %[1]s.password_hash, %[1]s.created_at, %[1]s.updated_at", alias)
}

func userDest(u *User) []interface{} {
	return []interface{}{&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt}
}

// stamp fills zero timestamps with now. Seeding passes historical values.
func stamp(created, updated *time.Time) {
	if created.IsZero() {
		*created = time.Now().UTC()
	}
	if updated.IsZero() {
		*updated = *created
	}
}

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	stamp(&u.CreatedAt, &u.UpdatedAt)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO app_user (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	return db.Classify(err, "user not found", constraints)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols("u")+` FROM app_user u WHERE u.id = $1`, id).Scan(userDest(&u)...)
	if err != nil {
		return nil, db.Classify(err, "user not found", constraints)
	}
	return &u, nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols("u")+` FROM app_user u WHERE lower(u.email) = lower($1)`, email).Scan(userDest(&u)...)
	if err != nil {
		return nil, db.Classify(err, "user not found", constraints)
	}
	return &u, nil
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE app_user SET email = $2, name = $3, password_hash = $4, updated_at = $5
		WHERE id = $1`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.UpdatedAt,
	)
	if err != nil {
		return db.Classify(err, "user not found", constraints)
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "user not found", constraints)
	}
	return nil
}
