package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snooze categories understood by the detectors.
const (
	SnoozeRenewalReminder  = "renewal_reminder"
	SnoozeNeglectedAccount = "neglected_account"
)

// RelationshipNotApplicable permanently opts an account out of neglect checks.
const RelationshipNotApplicable = "not_applicable"

// Deal is a priced proposal or contract record tied to an account. The date
// fields arrive as raw strings from the import layer and are frequently
// malformed or empty; parsing happens in the engine, never here.
type Deal struct {
	ID             string
	AccountID      string
	Status         string
	PipelineStatus string
	Type           string
	AmountExTax    *decimal.Decimal
	AmountIncTax   *decimal.Decimal
	ContractStart  string
	ContractEnd    string
	EstimateDate   string
	CreatedDate    string
	Department     string
	Address        string
	Archived       bool
}

// Account carries the recomputed per-year maps alongside imported attributes.
// The maps are written only by a full batch run, never patched piecemeal.
type Account struct {
	ID              string
	Name            string
	RevenueByYear   map[int]decimal.Decimal
	SegmentByYear   map[int]string
	DealCountByYear map[int]int
	ActiveSegment   string
	ICPScore        *float64
	LastInteraction *time.Time
	Relationship    string
	Archived        bool
}

// SnoozeDirective suppresses one notification category for an account until expiry.
type SnoozeDirective struct {
	AccountID string
	Category  string
	ExpiresAt time.Time
}

// RiskFlagRecord is the persisted form of an at-risk account.
type RiskFlagRecord struct {
	AccountID       string
	DealID          string
	ContractEnd     time.Time
	DaysUntilExpiry int
	Duplicate       bool
	ConflictIDs     []string
}

// NeglectFlagRecord is the persisted form of a stale-interaction account.
type NeglectFlagRecord struct {
	AccountID        string
	DaysSinceContact int
	NoInteraction    bool
	ThresholdDays    int
	Segment          string
}

// BatchRunRecord summarises one completed batch for auditing.
type BatchRunRecord struct {
	RunID                string
	AsOf                 time.Time
	StartedAt            time.Time
	FinishedAt           time.Time
	Accounts             int
	Deals                int
	RiskFlags            int
	NeglectFlags         int
	UndatedDeals         int
	NonAllocatable       int
	MissingAmount        int
	AmountFallbacks      int
	UnrecognizedStatuses int
	Samples              []string
}

// YearTotal is one portfolio-wide revenue data point for exports.
type YearTotal struct {
	Year    int
	Total   decimal.Decimal
	Account int
}
