package auth

import "slices"

const (
	RoleViewer   = "viewer"
	RolePreparer = "preparer"
	RoleApprover = "approver"
	RoleAdmin    = "admin"
)

const (
	PermPayrollRead    = "payroll.read"
	PermPayrollPrepare = "payroll.prepare"
	PermPayrollApprove = "payroll.approve"
	PermPayrollProcess = "payroll.process"
	PermPayrollReverse = "payroll.reverse"
	PermPaystubRead    = "payroll.paystub.read"
)

// RolePermissions separates preparing a run from approving and processing it.
var RolePermissions = map[string][]string{
	RoleViewer: {
		PermPayrollRead,
	},
	RolePreparer: {
		PermPayrollRead,
		PermPayrollPrepare,
		PermPaystubRead,
	},
	RoleApprover: {
		PermPayrollRead,
		PermPayrollApprove,
		PermPayrollProcess,
		PermPaystubRead,
	},
	RoleAdmin: {
		PermPayrollRead,
		PermPayrollPrepare,
		PermPayrollApprove,
		PermPayrollProcess,
		PermPayrollReverse,
		PermPaystubRead,
	},
}

// RoleStore answers permission checks from the static role table.
type RoleStore struct{}

func (RoleStore) HasPermission(role, permission string) bool {
	return slices.Contains(RolePermissions[role], permission)
}
