package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"
)

// StatsCategory is one category's share of a month's spending.
type StatsCategory struct {
	Category   string  `json:"category"`
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// StatsResponse summarises one month of dated expenses.
type StatsResponse struct {
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	Total      float64         `json:"total"`
	Categories []StatsCategory `json:"categories"`
}

// ExpenseStats returns a per-category summary for the requested month,
// defaulting to the current one.
func (h *Handlers) ExpenseStats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year := now.Year()
	month := int(now.Month())

	if s := r.URL.Query().Get("year"); s != "" {
		if y, err := strconv.Atoi(s); err == nil {
			year = y
		}
	}
	if s := r.URL.Query().Get("month"); s != "" {
		if m, err := strconv.Atoi(s); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}

	totals, err := h.db.CategoryTotalsByMonth(year, month)
	if err != nil {
		log.Printf("CategoryTotalsByMonth error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var total float64
	for _, ct := range totals {
		total += ct.Total
	}

	categories := make([]StatsCategory, 0, len(totals))
	for _, ct := range totals {
		percentage := 0.0
		if total > 0 {
			percentage = (ct.Total / total) * 100
		}
		categories = append(categories, StatsCategory{
			Category:   ct.Category,
			Total:      ct.Total,
			Count:      ct.Count,
			Percentage: percentage,
		})
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Year:       year,
		Month:      month,
		Total:      total,
		Categories: categories,
	})
}
