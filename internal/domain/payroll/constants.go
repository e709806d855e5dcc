package payroll

type RunStatus string

const (
	RunStatusDraft               RunStatus = "DRAFT"
	RunStatusPendingApproval     RunStatus = "PENDING_APPROVAL"
	RunStatusApproved            RunStatus = "APPROVED"
	RunStatusProcessing          RunStatus = "PROCESSING"
	RunStatusCompleted           RunStatus = "COMPLETED"
	RunStatusCompletedWithErrors RunStatus = "COMPLETED_WITH_ERRORS"
	RunStatusFailed              RunStatus = "FAILED"
	RunStatusCancelled           RunStatus = "CANCELLED"
	RunStatusReversed            RunStatus = "REVERSED"
)

type PaycheckStatus string

const (
	PaycheckCalculated  PaycheckStatus = "calculated"
	PaycheckNeedsReview PaycheckStatus = "needs_review"
	PaycheckError       PaycheckStatus = "error"
	PaycheckCommitted   PaycheckStatus = "committed"
	PaycheckExcluded    PaycheckStatus = "excluded"
	PaycheckReversed    PaycheckStatus = "reversed"
)

// RunPolicy decides what a per-employee calculation error does to the run.
type RunPolicy string

const (
	PolicyContinue     RunPolicy = "continue"
	PolicyAllOrNothing RunPolicy = "all_or_nothing"
)

type ReviewAction string

const (
	ReviewExclude     ReviewAction = "exclude"
	ReviewRecalculate ReviewAction = "recalculate"
)

const (
	WarningNegativeNet = "negative_net"

	AuditEntityRun      = "payroll_run"
	AuditEntityPaycheck = "payroll_paycheck"

	AuditActionCreate  = "payroll.run.create"
	AuditActionStatus  = "payroll.run.status"
	AuditActionResolve = "payroll.paycheck.resolve"
	AuditActionReverse = "payroll.run.reverse"

	DefaultWorkers = 8
)
