package model

import (
	"time"

	"github.com/mfaulds/projectpulse/form"
)

type User struct {
	ID                 int64   `json:"id,omitempty"`
	Email              string  `json:"email"`
	IsAdmin            bool    `json:"is_admin"`
	AssignedProjectIDs []int64 `json:"assigned_project_ids"`
	BannedProjectIDs   []int64 `json:"banned_project_ids"`
}

type Invite struct {
	ID     int64  `json:"id,omitempty"`
	Key    string `json:"key"`
	Email  string `json:"email,omitempty"`
	Link   string `json:"link,omitempty"`
	Secret string `json:"secret,omitempty"`
}

type Project struct {
	ID             int64      `json:"id,omitempty"`
	Name           string     `json:"name"`
	FocalpointCode *int64     `json:"focalpoint_code,omitempty"`
	Closed         bool       `json:"closed"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`

	// QuestionSetIDs is the ordered assignment that drives form composition.
	QuestionSetIDs []int64 `json:"question_set_ids,omitempty"`
	// Bespoke questions are stored in place, unversioned.
	Bespoke form.Canonical `json:"bespoke,omitempty"`
}

type QuestionSet struct {
	ID        int64          `json:"id,omitempty"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by,omitempty"`
	Data      form.Canonical `json:"data"`
}

const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

type Record struct {
	ID            int64      `json:"id,omitempty"`
	ProjectID     int64      `json:"project_id,omitempty"`
	CreatedBy     int64      `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	ReviewStatus  string     `json:"review_status"`
	ReviewComment *string    `json:"review_comment,omitempty"`

	// Answers maps question id to the coerced stored value. Questions is the
	// metadata snapshot captured when the record was created or last edited;
	// display never reinterprets old answers against the live form.
	Answers   map[string]any       `json:"answers"`
	Questions map[string]form.Meta `json:"questions,omitempty"`
}
