package clinic

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicrecords/records/internal/platform/db"
)

const doctorCols = `d.user_id, d.specialization, d.license_number, d.created_at, d.updated_at`

// doctorDest scans doctorCols followed by the doctor's user columns.
func doctorDest(d *Doctor) []interface{} {
	d.User = &User{}
	dest := []interface{}{&d.UserID, &d.Specialization, &d.LicenseNumber, &d.CreatedAt, &d.UpdatedAt}
	return append(dest, userDest(d.User)...)
}

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	stamp(&d.CreatedAt, &d.UpdatedAt)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO doctor (user_id, specialization, license_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.UserID, d.Specialization, d.LicenseNumber, d.CreatedAt, d.UpdatedAt,
	)
	return db.Classify(err, "doctor not found", constraints)
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+doctorCols+`, `+userCols("du")+`
		FROM doctor d JOIN app_user du ON du.id = d.user_id
		WHERE d.user_id = $1`, userID).Scan(doctorDest(&d)...)
	if err != nil {
		return nil, db.Classify(err, "doctor not found", constraints)
	}
	return &d, nil
}

func (r *doctorRepoPG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+doctorCols+`, `+userCols("du")+`
		FROM doctor d JOIN app_user du ON du.id = d.user_id
		ORDER BY lower(du.name), d.user_id`)
	if err != nil {
		return nil, db.Classify(err, "doctor not found", constraints)
	}
	defer rows.Close()

	out := []*Doctor{}
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(doctorDest(&d)...); err != nil {
			return nil, db.Classify(err, "doctor not found", constraints)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "doctor not found", constraints)
	}
	return out, nil
}
