package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expensetrail/internal/models"
	"expensetrail/internal/validation"
)

type expenseRequest struct {
	Description string `json:"description"`
	Amount      any    `json:"amount"`
	Date        string `json:"date"`
	Category    string `json:"category"`
}

// AddExpenseForm renders the expense submission page.
func (h *Handlers) AddExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "add_expense.html", nil)
}

// AddExpense creates a new expense record.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form submission")
			return
		}
		req.Description = r.FormValue("description")
		req.Date = r.FormValue("date")
		req.Category = r.FormValue("category")
		if v := r.FormValue("amount"); v != "" {
			req.Amount = v
		}
	}

	var errs validation.Errors
	if strings.TrimSpace(req.Description) == "" {
		errs.Add("description", "description is required")
	}
	if strings.TrimSpace(req.Category) == "" {
		errs.Add("category", "category is required")
	}
	amount, ok := parseAmount(req.Amount)
	switch {
	case req.Amount == nil:
		errs.Add("amount", "amount is required")
	case !ok:
		errs.Add("amount", "amount must be a number")
	case amount < 0:
		errs.Add("amount", "amount must be non-negative")
	}

	var date *string
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			errs.Add("date", "date must be in YYYY-MM-DD format")
		} else {
			date = &req.Date
		}
	}

	if len(errs) > 0 {
		writeValidationErrors(w, errs)
		return
	}

	id, err := h.db.CreateExpense(req.Description, amount, date, req.Category)
	if err != nil {
		if errors.As(err, &errs) {
			writeValidationErrors(w, errs)
			return
		}
		log.Printf("CreateExpense error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, models.Expense{
		ID:          id,
		Description: req.Description,
		Amount:      amount,
		Date:        date,
		Category:    req.Category,
	})
}

// ListExpenses returns expenses as JSON, optionally filtered by exact date.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	var (
		expenses []models.Expense
		err      error
	)
	if date := r.URL.Query().Get("date"); date != "" {
		expenses, err = h.db.ListExpensesByDate(date)
	} else {
		expenses, err = h.db.ListExpenses()
	}
	if err != nil {
		log.Printf("ListExpenses error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if expenses == nil {
		expenses = []models.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

// parseAmount coerces an amount from either a JSON number or the string form
// values the bundled pages submit.
func parseAmount(v any) (float64, bool) {
	switch a := v.(type) {
	case float64:
		return a, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		return f, err == nil
	case json.Number:
		f, err := a.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
