package core

import (
	"errors"
	"slices"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	// Transaction is a single income or expense record. Amount is always a
	// non-negative magnitude; the direction comes from Type.
	Transaction struct {
		ID          string
		Amount      Money
		Date        time.Time
		Description string
		Category    string
		Type        TransactionType
	}
)

var (
	IncomeCategories  = []string{"Salary", "Freelance", "Investment", "Gift", "Other"}
	ExpenseCategories = []string{"Food", "Transport", "Housing", "Utilities", "Shopping", "Entertainment", "Health", "Education", "Other"}
)

var (
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCategory      = errors.New("empty category")
	ErrUnknownCategory    = errors.New("category not allowed for transaction type")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

// IsValidationError reports whether err comes from transaction validation.
func IsValidationError(err error) bool {
	for _, target := range []error{ErrInvalidType, ErrInvalidAmount, ErrInvalidDate, ErrEmptyDescription, ErrEmptyCategory, ErrUnknownCategory, ErrDescriptionTooLong} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ParseTransactionType accepts any casing, the way persisted rows from older
// clients were written.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", ErrInvalidType
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	return string(t)
}

// Categories returns the category set associated with the type.
func (t TransactionType) Categories() []string {
	switch t {
	case Income:
		return slices.Clone(IncomeCategories)
	case Expense:
		return slices.Clone(ExpenseCategories)
	}
	return nil
}

// AllowsCategory reports whether c belongs to the category set of t.
func (t TransactionType) AllowsCategory(c string) bool {
	switch t {
	case Income:
		return slices.Contains(IncomeCategories, c)
	case Expense:
		return slices.Contains(ExpenseCategories, c)
	}
	return false
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Signed returns the amount with the sign implied by the transaction type.
func (t Transaction) Signed() int64 {
	if t.Type == Income {
		return t.Amount.Cents
	}
	return -t.Amount.Cents
}

// Validate checks a transaction at creation time, including category membership.
func (t Transaction) Validate() error {
	if err := t.validateFields(); err != nil {
		return err
	}
	if !t.Type.AllowsCategory(t.Category) {
		return ErrUnknownCategory
	}
	return nil
}

// ValidateUpdate is the relaxed check used for edits: a type change does not
// force the category to be re-validated.
func (t Transaction) ValidateUpdate() error {
	return t.validateFields()
}

func (t Transaction) validateFields() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}
