package audit

import (
	"time"

	"github.com/google/uuid"
)

// TimelineFilters narrows the audit timeline. Zero values do not filter.
type TimelineFilters struct {
	From time.Time
	To   time.Time
	// Actor limits rows to changes made by one principal.
	Actor uuid.UUID
	// Entity is "user" or "role"; EntityID pins a single subject.
	Entity   string
	EntityID string
	// Action matches as a prefix, so "rbac.role" covers assign and remove.
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded access-control change.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	ActorID  *uuid.UUID     `json:"actor_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo carries simple offset pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// TimelineQuery is the storage-level window request.
type TimelineQuery struct {
	TimelineFilters
	Offset int
	Limit  int
}
