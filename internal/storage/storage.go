package storage

import (
	"context"
	"errors"
	"math"
	"time"
)

// FetchStatus tracks where a keyword is in its fetch lifecycle.
type FetchStatus string

const (
	StatusPending FetchStatus = "pending"
	StatusFetched FetchStatus = "fetched"
	StatusFailed  FetchStatus = "failed"
)

// Terminal reports whether no further fetch work will happen for the status.
func (s FetchStatus) Terminal() bool {
	return s == StatusFetched || s == StatusFailed
}

var (
	ErrNotFound   = errors.New("keyword not found")
	ErrNotPending = errors.New("keyword is no longer pending")
)

// Pagination bounds shared by every backend.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Keyword is a single search term submitted by an owner together with the
// metrics collected from its result page.
type Keyword struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Name        string      `json:"name"`
	AdsTopCount int         `json:"ads_top_count"`
	AdsTopURLs  []string    `json:"ads_top_urls"`
	ResultURLs  []string    `json:"result_urls"`
	FetchStatus FetchStatus `json:"fetch_status"`
	FetchError  string      `json:"fetch_error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	FetchedAt   *time.Time  `json:"fetched_at,omitempty"`
}

// Outcome is the terminal update applied to a pending keyword. Build it with
// Fetched or Failed so the ad count always agrees with the ad URL list.
type Outcome struct {
	Status     FetchStatus
	AdURLs     []string
	ResultURLs []string
	Error      string
}

// Fetched builds a successful outcome.
func Fetched(adURLs, resultURLs []string) Outcome {
	if adURLs == nil {
		adURLs = []string{}
	}
	if resultURLs == nil {
		resultURLs = []string{}
	}
	return Outcome{Status: StatusFetched, AdURLs: adURLs, ResultURLs: resultURLs}
}

// Failed builds a failed outcome. URL lists stay empty.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, AdURLs: []string{}, ResultURLs: []string{}, Error: reason}
}

// AdCount is the number of top ads recorded by the outcome.
func (o Outcome) AdCount() int {
	return len(o.AdURLs)
}

// Backend defines the interface for persisting keywords.
//
// Update only applies to a record that is still pending and returns
// ErrNotPending otherwise, so redelivered jobs never overwrite a terminal state.
type Backend interface {
	Create(ctx context.Context, ownerID, name string) (*Keyword, error)
	Update(ctx context.Context, id string, outcome Outcome) error
	Find(ctx context.Context, id string) (*Keyword, error)
	List(ctx context.Context, ownerID string, page, perPage int) ([]*Keyword, int, error)
	Close() error
}

// NormalizePage clamps pagination arguments and returns the offset to use.
// page is capped so the offset never overflows.
func NormalizePage(page, perPage int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if maxPage := math.MaxInt / perPage; page > maxPage {
		page = maxPage
	}
	return page, perPage, (page - 1) * perPage
}

// Apply returns a copy of k with the outcome applied at the given time.
func (k Keyword) Apply(o Outcome, at time.Time) Keyword {
	k.FetchStatus = o.Status
	k.AdsTopURLs = append([]string{}, o.AdURLs...)
	k.ResultURLs = append([]string{}, o.ResultURLs...)
	k.AdsTopCount = len(k.AdsTopURLs)
	k.FetchError = o.Error
	k.UpdatedAt = at
	if o.Status == StatusFetched {
		t := at
		k.FetchedAt = &t
	}
	return k
}
