package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

// UserStats totals the session summaries recorded for one account.
type UserStats struct {
	AccountId    int
	Sessions     int
	Minutes      int
	Messages     int
	Score        int
	LastRecorded time.Time
}
