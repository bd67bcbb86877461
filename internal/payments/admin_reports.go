package payments

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// AdminReportsHandler serves read-only payment reporting for staff.
type AdminReportsHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminReportsHandler creates the reports handler.
func NewAdminReportsHandler(db *sql.DB, logger *logging.Logger) *AdminReportsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminReportsHandler{db: db, logger: logger}
}

// PaymentListItem is one payment in list responses.
type PaymentListItem struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	AmountPesewas int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Method        string  `json:"payment_method"`
	Provider      string  `json:"provider"`
	Status        string  `json:"status"`
	ProviderRef   *string `json:"provider_transaction_id,omitempty"`
	AppointmentID *string `json:"appointment_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// PaymentsListResponse is a paginated payments listing.
type PaymentsListResponse struct {
	Payments   []PaymentListItem `json:"payments"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ListPayments handles GET /admin/payments?status=&page=&page_size=.
func (h *AdminReportsHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}

	where := ""
	args := []any{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM payments " + where
	if err := h.db.QueryRowContext(r.Context(), countQuery, args...).Scan(&total); err != nil {
		h.logger.Error("payments count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list payments", nil)
		return
	}

	limitPos := len(args) + 1
	query := `
		SELECT id, user_id, amount_pesewas, currency, payment_method, provider, status, provider_ref, appointment_id, created_at
		FROM payments ` + where + `
		ORDER BY created_at DESC
		LIMIT $` + strconv.Itoa(limitPos) + ` OFFSET $` + strconv.Itoa(limitPos+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := h.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("payments listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list payments", nil)
		return
	}
	defer func() { _ = rows.Close() }()

	items := []PaymentListItem{}
	for rows.Next() {
		var item PaymentListItem
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.AmountPesewas,
			&item.Currency,
			&item.Method,
			&item.Provider,
			&item.Status,
			&item.ProviderRef,
			&item.AppointmentID,
			&item.CreatedAt,
		); err != nil {
			h.logger.Error("payments row scan failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "failed to list payments", nil)
			return
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("payments rows iteration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list payments", nil)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	writeJSON(w, http.StatusOK, PaymentsListResponse{
		Payments:   items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// DailySummaryRow is one day's settled volume.
type DailySummaryRow struct {
	Day            string `json:"day"`
	CompletedCount int    `json:"completed_count"`
	CompletedTotal int64  `json:"completed_total"`
	RefundedCount  int    `json:"refunded_count"`
}

// Summary handles GET /admin/payments/summary?days=N.
func (h *AdminReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days < 1 || days > 90 {
		days = 7
	}

	query := `
		SELECT to_char(date_trunc('day', created_at), 'YYYY-MM-DD') AS day,
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COALESCE(SUM(amount_pesewas) FILTER (WHERE status = 'completed'), 0),
		       COUNT(*) FILTER (WHERE status = 'refunded')
		FROM payments
		WHERE created_at >= now() - ($1 || ' days')::interval
		GROUP BY 1
		ORDER BY 1 DESC
	`
	rows, err := h.db.QueryContext(r.Context(), query, strconv.Itoa(days))
	if err != nil {
		h.logger.Error("payments summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to build summary", nil)
		return
	}
	defer func() { _ = rows.Close() }()

	summary := []DailySummaryRow{}
	for rows.Next() {
		var row DailySummaryRow
		if err := rows.Scan(&row.Day, &row.CompletedCount, &row.CompletedTotal, &row.RefundedCount); err != nil {
			h.logger.Error("summary row scan failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "failed to build summary", nil)
			return
		}
		summary = append(summary, row)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("summary rows iteration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to build summary", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": days, "summary": summary})
}
