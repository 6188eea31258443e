package appointment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// ErrNotFound means the appointment id does not exist.
var ErrNotFound = errors.New("appointment: not found")

// Window is an appointment's scheduled slot.
type Window struct {
	AppointmentID string
	PatientID     string
	DoctorID      string
	Start         time.Time
	End           time.Time
}

// Contains reports whether t falls inside the slot.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Repo reads appointment windows from the scheduling database. The
// REST tier owns writes; the gateway only re-validates before ringing.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "appointment pool")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "appointment ping")
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() {
	r.pool.Close()
}

const windowQuery = `
SELECT appointment_id, patient_id, doctor_id, appointment_time, appointment_time + duration
FROM appointments
WHERE appointment_id = $1`

func (r *Repo) Window(ctx context.Context, appointmentID string) (Window, error) {
	var w Window
	err := r.pool.QueryRow(ctx, windowQuery, appointmentID).
		Scan(&w.AppointmentID, &w.PatientID, &w.DoctorID, &w.Start, &w.End)
	if errors.Is(err, pgx.ErrNoRows) {
		return Window{}, ErrNotFound
	}
	if err != nil {
		return Window{}, errors.Wrap(err, "appointment window")
	}
	return w, nil
}
