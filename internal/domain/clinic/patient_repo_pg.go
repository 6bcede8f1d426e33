package clinic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicrecords/records/internal/platform/db"
)

const patientCols = `p.user_id, p.date_of_birth, p.gender, p.phone_number, p.address,
	p.emergency_contact, p.blood_type, p.allergies, p.chronic_conditions, p.created_at, p.updated_at`

// patientRow holds the columns that need conversion after scanning.
type patientRow struct {
	p         Patient
	dob       time.Time
	bloodType *string
	user      User
}

// dest scans patientCols followed by the patient's user columns.
func (pr *patientRow) dest() []interface{} {
	p := &pr.p
	dest := []interface{}{
		&p.UserID, &pr.dob, &p.Gender, &p.PhoneNumber, &p.Address,
		&p.EmergencyContact, &pr.bloodType, &p.Allergies, &p.ChronicConditions, &p.CreatedAt, &p.UpdatedAt,
	}
	return append(dest, userDest(&pr.user)...)
}

func (pr *patientRow) patient() *Patient {
	p := pr.p
	p.DateOfBirth = DateOf(pr.dob)
	if pr.bloodType != nil {
		bt := BloodType(*pr.bloodType)
		p.BloodType = &bt
	}
	p.Allergies = normalizeList(p.Allergies)
	p.ChronicConditions = normalizeList(p.ChronicConditions)
	u := pr.user
	p.User = &u
	return &p
}

func bloodTypeArg(b *BloodType) *string {
	if b == nil {
		return nil
	}
	s := string(*b)
	return &s
}

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	stamp(&p.CreatedAt, &p.UpdatedAt)
	p.Allergies = normalizeList(p.Allergies)
	p.ChronicConditions = normalizeList(p.ChronicConditions)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (
			user_id, date_of_birth, gender, phone_number, address, emergency_contact,
			blood_type, allergies, chronic_conditions, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.UserID, p.DateOfBirth.Time, string(p.Gender), p.PhoneNumber, p.Address, p.EmergencyContact,
		bloodTypeArg(p.BloodType), p.Allergies, p.ChronicConditions, p.CreatedAt, p.UpdatedAt,
	)
	return db.Classify(err, "patient not found", constraints)
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	var pr patientRow
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+patientCols+`, `+userCols("u")+`
		FROM patient p JOIN app_user u ON u.id = p.user_id
		WHERE p.user_id = $1`, userID).Scan(pr.dest()...)
	if err != nil {
		return nil, db.Classify(err, "patient not found", constraints)
	}
	return pr.patient(), nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	p.Allergies = normalizeList(p.Allergies)
	p.ChronicConditions = normalizeList(p.ChronicConditions)
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET
			date_of_birth = $2, gender = $3, phone_number = $4, address = $5,
			emergency_contact = $6, blood_type = $7, allergies = $8, chronic_conditions = $9,
			updated_at = $10
		WHERE user_id = $1`,
		p.UserID, p.DateOfBirth.Time, string(p.Gender), p.PhoneNumber, p.Address,
		p.EmergencyContact, bloodTypeArg(p.BloodType), p.Allergies, p.ChronicConditions,
		p.UpdatedAt,
	)
	if err != nil {
		return db.Classify(err, "patient not found", constraints)
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "patient not found", constraints)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, q PatientQuery) ([]*Patient, int, error) {
	listSQL, countSQL, args := buildPatientList(patientCols+", "+userCols("u"), q)
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "patient not found", constraints)
	}

	rows, err := conn.Query(ctx, listSQL, append(args, q.Page.Limit(), q.Page.Offset())...)
	if err != nil {
		return nil, 0, db.Classify(err, "patient not found", constraints)
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		var pr patientRow
		if err := rows.Scan(pr.dest()...); err != nil {
			return nil, 0, db.Classify(err, "patient not found", constraints)
		}
		items = append(items, pr.patient())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err, "patient not found", constraints)
	}
	return items, total, nil
}
