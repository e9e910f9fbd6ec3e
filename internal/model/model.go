package model

import "time"

// User is a registered account. Users are created out-of-band (cmd/useradd);
// the HTTP service only ever reads them.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	RFIDUID      *string   `json:"rfid_uid,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttendanceRecord is one scan event. Records are append-only: the service
// never updates or deletes them.
type AttendanceRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"name,omitempty"` // joined from users
	Timestamp time.Time `json:"timestamp"`
}
