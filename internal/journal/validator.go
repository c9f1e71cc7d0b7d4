// Package journal holds the balance rules every entry set must satisfy
// before it can be posted.
package journal

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Epsilon is the largest debit/credit difference still treated as balanced.
var Epsilon = decimal.RequireFromString("0.01")

type Code string

const (
	CodeInvalidLine         Code = "INVALID_LINE"
	CodeUnbalanced          Code = "UNBALANCED"
	CodeInsufficientEntries Code = "INSUFFICIENT_ENTRIES"
)

// MinEntries is the smallest postable entry set.
const MinEntries = 2

// Line is the part of a journal entry the rules look at.
type Line struct {
	AccountID snowflake.ID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Violation is one broken rule. Line is the zero-based index for INVALID_LINE
// and -1 otherwise.
type Violation struct {
	Code    Code   `json:"code"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type Result struct {
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Difference  decimal.Decimal `json:"difference"`
	Balanced    bool            `json:"balanced"`
	Violations  []Violation     `json:"violations"`
}

func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns the first violation as a *ValidationError, in the order
// INVALID_LINE, INSUFFICIENT_ENTRIES, UNBALANCED.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	for _, code := range []Code{CodeInvalidLine, CodeInsufficientEntries, CodeUnbalanced} {
		for _, v := range r.Violations {
			if v.Code == code {
				return &ValidationError{
					Code:       v.Code,
					Line:       v.Line,
					Message:    v.Message,
					Difference: r.Difference,
				}
			}
		}
	}
	return nil
}

// ValidationError reports why an entry set cannot be posted. Difference is
// debit minus credit.
type ValidationError struct {
	Code       Code
	Line       int
	Message    string
	Difference decimal.Decimal
}

func (e *ValidationError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Totals sums both sides without judging the entry set.
func Totals(lines []Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Validate applies every rule and reports all violations. It has no side effects.
func Validate(lines []Line) Result {
	debit, credit := Totals(lines)
	diff := debit.Sub(credit)
	res := Result{
		TotalDebit:  debit,
		TotalCredit: credit,
		Difference:  diff,
		Balanced:    diff.Abs().LessThan(Epsilon),
	}

	for i, line := range lines {
		if msg, ok := checkLine(line); !ok {
			res.Violations = append(res.Violations, Violation{Code: CodeInvalidLine, Line: i, Message: msg})
		}
	}

	if len(lines) < MinEntries {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeInsufficientEntries,
			Line:    -1,
			Message: fmt.Sprintf("transaction must have at least %d journal entries, has %d", MinEntries, len(lines)),
		})
	}

	if !res.Balanced {
		res.Violations = append(res.Violations, Violation{
			Code:    CodeUnbalanced,
			Line:    -1,
			Message: fmt.Sprintf("debit %s and credit %s differ by %s", debit.StringFixed(2), credit.StringFixed(2), diff.StringFixed(2)),
		})
	}

	return res
}

func checkLine(line Line) (string, bool) {
	if line.Debit.IsNegative() || line.Credit.IsNegative() {
		return "debit and credit cannot be negative", false
	}
	hasDebit := line.Debit.IsPositive()
	hasCredit := line.Credit.IsPositive()
	switch {
	case hasDebit && hasCredit:
		return "entry has both debit and credit", false
	case !hasDebit && !hasCredit:
		return "entry has neither debit nor credit", false
	}
	return "", true
}
