package models

import "time"

type PublishJob struct {
	ID           int64     `db:"id" json:"id"`
	PublishID    string    `db:"publish_id" json:"publish_id"`
	Title        string    `db:"title" json:"title"`
	VideoPath    string    `db:"video_path" json:"video_path"`
	Status       string    `db:"status" json:"status"`
	FailReason   string    `db:"fail_reason" json:"fail_reason"`
	ErrorKind    string    `db:"error_kind" json:"error_kind"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
