package model

import "time"

const UserTableName = "users"

// Roles match what the REST tier writes at registration time.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// UserRecord is the slice of the user main record the gateway touches.
// The REST tier owns the rest (profile, credentials, subscription).
// LastSeen is written by the gateway only on the transition to fully
// offline.
type UserRecord struct {
	UserID   string    `bson:"_id" json:"userId"`
	Role     string    `bson:"role" json:"role"`
	Name     string    `bson:"name" json:"name"`
	LastSeen time.Time `bson:"last_seen,omitempty" json:"lastSeen,omitempty"`
}
