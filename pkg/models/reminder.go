package models

import "time"

// ReminderStatus is the persistence state of a reminder row.
type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderDone    ReminderStatus = "done"
)

// Reminder is one persisted reminder. RemindAt and CreatedAt are
// stored as ISO-8601 text in sqlite and round-trip losslessly.
type Reminder struct {
	ID             string         `json:"id"`
	Message        string         `json:"message"`
	RemindAt       time.Time      `json:"remind_at"`
	CreatedAt      time.Time      `json:"created_at"`
	Status         ReminderStatus `json:"status"`
	RepeatInterval string         `json:"repeat_interval,omitempty"`
	SnoozedUntil   *time.Time     `json:"snoozed_until,omitempty"`
}
