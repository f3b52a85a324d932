package model

import (
	"gorm.io/datatypes"
)

type Activity string

const (
	ActivityLogin                Activity = "LOGIN"
	ActivityLogout               Activity = "LOGOUT"
	ActivityLoginFailed          Activity = "LOGIN_FAILED"
	ActivityPasswordChange       Activity = "PASSWORD_CHANGE"
	ActivitySessionStart         Activity = "SESSION_START"
	ActivitySessionEnd           Activity = "SESSION_END"
	ActivityCreateCustomer       Activity = "CREATE_CUSTOMER"
	ActivityUpdateCustomer       Activity = "UPDATE_CUSTOMER"
	ActivityDeleteCustomer       Activity = "DELETE_CUSTOMER"
	ActivityViewCustomer         Activity = "VIEW_CUSTOMER"
	ActivityViewLedger           Activity = "VIEW_LEDGER"
	ActivityCreateLedgerEntry    Activity = "CREATE_LEDGER_ENTRY"
	ActivityCreateInvoice        Activity = "CREATE_INVOICE"
	ActivityUpdateInvoice        Activity = "UPDATE_INVOICE"
	ActivityDeleteInvoice        Activity = "DELETE_INVOICE"
	ActivityPrintInvoice         Activity = "PRINT_INVOICE"
	ActivityCreateOrder          Activity = "CREATE_ORDER"
	ActivityUpdateOrder          Activity = "UPDATE_ORDER"
	ActivityDeleteOrder          Activity = "DELETE_ORDER"
	ActivityCreatePaymentVoucher Activity = "CREATE_PAYMENT_VOUCHER"
	ActivityUpdatePaymentVoucher Activity = "UPDATE_PAYMENT_VOUCHER"
	ActivityCreateRecovery       Activity = "CREATE_RECOVERY"
	ActivityUpdateRecovery       Activity = "UPDATE_RECOVERY"
	ActivityViewTurnoverReport   Activity = "VIEW_TURNOVER_REPORT"
	ActivityViewReport           Activity = "VIEW_REPORT"
	ActivityExportData           Activity = "EXPORT_DATA"
	ActivityExportLogs           Activity = "EXPORT_LOGS"
	ActivityResolveError         Activity = "RESOLVE_ERROR"
	ActivityPageView             Activity = "PAGE_VIEW"
	ActivitySearch               Activity = "SEARCH"
)

var knownActivities = map[Activity]struct{}{
	ActivityLogin: {}, ActivityLogout: {}, ActivityLoginFailed: {}, ActivityPasswordChange: {},
	ActivitySessionStart: {}, ActivitySessionEnd: {},
	ActivityCreateCustomer: {}, ActivityUpdateCustomer: {}, ActivityDeleteCustomer: {}, ActivityViewCustomer: {},
	ActivityViewLedger: {}, ActivityCreateLedgerEntry: {},
	ActivityCreateInvoice: {}, ActivityUpdateInvoice: {}, ActivityDeleteInvoice: {}, ActivityPrintInvoice: {},
	ActivityCreateOrder: {}, ActivityUpdateOrder: {}, ActivityDeleteOrder: {},
	ActivityCreatePaymentVoucher: {}, ActivityUpdatePaymentVoucher: {},
	ActivityCreateRecovery: {}, ActivityUpdateRecovery: {},
	ActivityViewTurnoverReport: {}, ActivityViewReport: {},
	ActivityExportData: {}, ActivityExportLogs: {}, ActivityResolveError: {},
	ActivityPageView: {}, ActivitySearch: {},
}

// IsKnown reports whether a belongs to the closed activity enum.
func (a Activity) IsKnown() bool {
	_, ok := knownActivities[a]
	return ok
}

type UserActivity struct {
	LogBase
	Activity          Activity       `gorm:"size:64;index" json:"activity"`
	Description       string         `gorm:"type:text" json:"description,omitempty"`
	Metadata          datatypes.JSON `json:"metadata,omitempty"`
	IPAddress         string         `gorm:"size:64" json:"ipAddress,omitempty"`
	UserAgent         string         `gorm:"size:256" json:"userAgent,omitempty"`
	Success           bool           `gorm:"index" json:"success"`
	Duration          *int64         `json:"duration,omitempty"` // ms
	ResourceID        string         `gorm:"size:128" json:"resourceId,omitempty"`
	ResourceType      string         `gorm:"size:64" json:"resourceType,omitempty"`
	AdditionalContext datatypes.JSON `json:"additionalContext,omitempty"`
}

func (UserActivity) TableName() string { return "user_activities" }

func (*UserActivity) Kind() Kind { return KindActivity }
