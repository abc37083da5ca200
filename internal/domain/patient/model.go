package patient

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

type Patient struct {
	ID                uuid.UUID `db:"id" json:"id"`
	FirstName         string    `db:"first_name" json:"first_name"`
	LastName          string    `db:"last_name" json:"last_name"`
	DOB               time.Time `db:"dob" json:"-"`
	Gender            string    `db:"gender" json:"gender"`
	Phone             *string   `db:"phone" json:"phone,omitempty"`
	Email             *string   `db:"email" json:"email,omitempty"`
	Address           *string   `db:"address" json:"address,omitempty"`
	InsuranceProvider *string   `db:"insurance_provider" json:"insurance_provider,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// MarshalJSON renders dob as a plain date.
func (p Patient) MarshalJSON() ([]byte, error) {
	type alias Patient
	return json.Marshal(struct {
		alias
		DOB string `json:"dob"`
	}{alias(p), p.DOB.Format(DateLayout)})
}
