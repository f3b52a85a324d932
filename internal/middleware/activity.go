package middleware

import (
	"net/http"
	"regexp"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/model"
)

type activityTag struct {
	activity    model.Activity
	description string
}

// TrackActivity tags every request on the route with an explicit activity. It takes
// precedence over the endpoint mapping.
func TrackActivity(activity model.Activity, description string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextActivityKey, activityTag{activity: activity, description: description})
		c.Next()
	}
}

type activityRoute struct {
	methods     []string
	pattern     *regexp.Regexp
	activity    model.Activity
	description string
}

func route(pattern string, activity model.Activity, description string, methods ...string) activityRoute {
	return activityRoute{
		methods:     methods,
		pattern:     regexp.MustCompile(`^` + pattern + `/?$`),
		activity:    activity,
		description: description,
	}
}

// First match wins, so more specific paths come before their parents.
var activityRoutes = []activityRoute{
	route(`/api/(auth/)?login`, model.ActivityLogin, "User logged in", http.MethodPost),
	route(`/api/(auth/)?logout`, model.ActivityLogout, "User logged out", http.MethodPost),
	route(`/api/(auth/|users/[^/]+/)?(change-)?password`, model.ActivityPasswordChange, "Password changed", http.MethodPost, http.MethodPut, http.MethodPatch),

	route(`/api/logs/export/[^/]+`, model.ActivityExportLogs, "Logs exported", http.MethodGet),
	route(`/api/logs/errors/[^/]+/resolve`, model.ActivityResolveError, "Error marked as resolved", http.MethodPut),

	route(`/api/customers/search`, model.ActivitySearch, "Customer search", http.MethodGet),
	route(`/api/customers`, model.ActivityCreateCustomer, "Customer created", http.MethodPost),
	route(`/api/customers/[^/]+`, model.ActivityUpdateCustomer, "Customer updated", http.MethodPut, http.MethodPatch),
	route(`/api/customers/[^/]+`, model.ActivityDeleteCustomer, "Customer deleted", http.MethodDelete),
	route(`/api/customers/[^/]+`, model.ActivityViewCustomer, "Customer viewed", http.MethodGet),

	route(`/api/ledger(/[^/]+)?`, model.ActivityViewLedger, "Ledger viewed", http.MethodGet),
	route(`/api/ledger`, model.ActivityCreateLedgerEntry, "Ledger entry created", http.MethodPost),

	route(`/api/invoices/[^/]+/print`, model.ActivityPrintInvoice, "Invoice printed", http.MethodGet, http.MethodPost),
	route(`/api/invoices`, model.ActivityCreateInvoice, "Invoice created", http.MethodPost),
	route(`/api/invoices/[^/]+`, model.ActivityUpdateInvoice, "Invoice updated", http.MethodPut, http.MethodPatch),
	route(`/api/invoices/[^/]+`, model.ActivityDeleteInvoice, "Invoice deleted", http.MethodDelete),

	route(`/api/orders`, model.ActivityCreateOrder, "Order created", http.MethodPost),
	route(`/api/orders/[^/]+`, model.ActivityUpdateOrder, "Order updated", http.MethodPut, http.MethodPatch),
	route(`/api/orders/[^/]+`, model.ActivityDeleteOrder, "Order deleted", http.MethodDelete),

	route(`/api/payment-vouchers`, model.ActivityCreatePaymentVoucher, "Payment voucher created", http.MethodPost),
	route(`/api/payment-vouchers/[^/]+`, model.ActivityUpdatePaymentVoucher, "Payment voucher updated", http.MethodPut, http.MethodPatch),

	route(`/api/recover(y|ies)`, model.ActivityCreateRecovery, "Recovery created", http.MethodPost),
	route(`/api/recover(y|ies)/[^/]+`, model.ActivityUpdateRecovery, "Recovery updated", http.MethodPut, http.MethodPatch),

	route(`/api/reports/turnover(/.*)?`, model.ActivityViewTurnoverReport, "Turnover report viewed", http.MethodGet),
	route(`/api/reports(/.*)?`, model.ActivityViewReport, "Report viewed", http.MethodGet),

	route(`/api/.+/export`, model.ActivityExportData, "Data exported", http.MethodGet, http.MethodPost),
	route(`/api/.+/search`, model.ActivitySearch, "Search", http.MethodGet),
}

// MatchActivity maps an endpoint and method to a named activity.
func MatchActivity(method, path string) (model.Activity, string, bool) {
	for _, r := range activityRoutes {
		if !slices.Contains(r.methods, method) || !r.pattern.MatchString(path) {
			continue
		}
		return r.activity, r.description, true
	}
	return "", "", false
}

func activityFor(c *gin.Context) (activityTag, bool) {
	if v, ok := c.Get(ContextActivityKey); ok {
		if tag, ok := v.(activityTag); ok {
			return tag, true
		}
	}
	a, desc, ok := MatchActivity(c.Request.Method, c.Request.URL.Path)
	return activityTag{activity: a, description: desc}, ok
}
