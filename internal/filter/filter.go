// Package filter builds task predicates once and evaluates them two ways: as a
// parameterised SQL WHERE fragment for the store, and in memory against a
// domain.Task. Call sites that must agree (a list and its count) share one Expr.
package filter

import (
	"fmt"
	"strings"
	"time"

	"canopy/internal/domain"
)

// Field is a task column a predicate can reference.
type Field string

const (
	Assignee   Field = "assignee_id"
	CreatedBy  Field = "created_by_id"
	Status     Field = "status"
	Priority   Field = "priority"
	DueDate    Field = "due_date"
	DeletedAt  Field = "deleted_at"
	ArchivedAt Field = "archived_at"
)

type Expr interface {
	Match(t domain.Task) bool
	write(w *writer)
}

// Render returns the WHERE fragment for e with placeholders numbered from
// firstArg, plus the matching argument list.
func Render(e Expr, firstArg int) (string, []any) {
	if firstArg < 1 {
		firstArg = 1
	}
	w := &writer{next: firstArg}
	e.write(w)
	return w.b.String(), w.args
}

type writer struct {
	b    strings.Builder
	args []any
	next int
}

func (w *writer) arg(value any) string {
	w.args = append(w.args, value)
	placeholder := fmt.Sprintf("$%d", w.next)
	w.next++
	return placeholder
}

type junction struct {
	op    string
	exprs []Expr
}

func And(exprs ...Expr) Expr { return junction{op: "AND", exprs: exprs} }
func Or(exprs ...Expr) Expr  { return junction{op: "OR", exprs: exprs} }

func (j junction) Match(t domain.Task) bool {
	if j.op == "AND" {
		for _, e := range j.exprs {
			if !e.Match(t) {
				return false
			}
		}
		return true
	}
	for _, e := range j.exprs {
		if e.Match(t) {
			return true
		}
	}
	return false
}

func (j junction) write(w *writer) {
	if len(j.exprs) == 0 {
		if j.op == "AND" {
			w.b.WriteString("TRUE")
		} else {
			w.b.WriteString("FALSE")
		}
		return
	}
	w.b.WriteString("(")
	for i, e := range j.exprs {
		if i > 0 {
			w.b.WriteString(" " + j.op + " ")
		}
		e.write(w)
	}
	w.b.WriteString(")")
}

type not struct{ expr Expr }

func Not(e Expr) Expr { return not{expr: e} }

func (n not) Match(t domain.Task) bool { return !n.expr.Match(t) }

func (n not) write(w *writer) {
	w.b.WriteString("NOT ")
	n.expr.write(w)
}

type nullCheck struct {
	field Field
	null  bool
}

func IsNull(f Field) Expr  { return nullCheck{field: f, null: true} }
func NotNull(f Field) Expr { return nullCheck{field: f, null: false} }

func (c nullCheck) Match(t domain.Task) bool {
	return present(t, c.field) != c.null
}

func (c nullCheck) write(w *writer) {
	if c.null {
		w.b.WriteString(string(c.field) + " IS NULL")
		return
	}
	w.b.WriteString(string(c.field) + " IS NOT NULL")
}

type membership struct {
	field  Field
	values []string
	negate bool
}

// Eq compares a text column. A NULL column never matches, as in SQL.
func Eq(f Field, value string) Expr { return membership{field: f, values: []string{value}} }

func In(f Field, values ...string) Expr { return membership{field: f, values: values} }

// NotIn is NULL-safe in neither direction: a NULL column matches nothing.
func NotIn(f Field, values ...string) Expr {
	return membership{field: f, values: values, negate: true}
}

func (m membership) Match(t domain.Task) bool {
	value, ok := text(t, m.field)
	if !ok {
		return false
	}
	found := false
	for _, candidate := range m.values {
		if candidate == value {
			found = true
			break
		}
	}
	return found != m.negate
}

func (m membership) write(w *writer) {
	if len(m.values) == 1 {
		op := " = "
		if m.negate {
			op = " <> "
		}
		w.b.WriteString(string(m.field) + op + w.arg(m.values[0]))
		return
	}
	placeholders := make([]string, 0, len(m.values))
	for _, value := range m.values {
		placeholders = append(placeholders, w.arg(value))
	}
	op := " IN "
	if m.negate {
		op = " NOT IN "
	}
	if len(placeholders) == 0 {
		if m.negate {
			w.b.WriteString(string(m.field) + " IS NOT NULL")
		} else {
			w.b.WriteString("FALSE")
		}
		return
	}
	w.b.WriteString(string(m.field) + op + "(" + strings.Join(placeholders, ", ") + ")")
}

type timeCompare struct {
	field Field
	op    string
	at    time.Time
}

func Before(f Field, at time.Time) Expr     { return timeCompare{field: f, op: "<", at: at.UTC()} }
func OnOrBefore(f Field, at time.Time) Expr { return timeCompare{field: f, op: "<=", at: at.UTC()} }
func After(f Field, at time.Time) Expr      { return timeCompare{field: f, op: ">", at: at.UTC()} }

func (c timeCompare) Match(t domain.Task) bool {
	value := timestamp(t, c.field)
	if value == nil {
		return false
	}
	switch c.op {
	case "<":
		return value.Before(c.at)
	case "<=":
		return !value.After(c.at)
	default:
		return value.After(c.at)
	}
}

func (c timeCompare) write(w *writer) {
	w.b.WriteString(string(c.field) + " " + c.op + " " + w.arg(c.at))
}

func text(t domain.Task, f Field) (string, bool) {
	switch f {
	case Assignee:
		if t.AssigneeID == nil {
			return "", false
		}
		return *t.AssigneeID, true
	case CreatedBy:
		return t.CreatedByID, true
	case Status:
		return string(t.Status), true
	case Priority:
		return string(t.Priority), true
	default:
		return "", false
	}
}

func timestamp(t domain.Task, f Field) *time.Time {
	switch f {
	case DueDate:
		return t.DueDate
	case DeletedAt:
		return t.DeletedAt
	case ArchivedAt:
		return t.ArchivedAt
	default:
		return nil
	}
}

func present(t domain.Task, f Field) bool {
	switch f {
	case DueDate, DeletedAt, ArchivedAt:
		return timestamp(t, f) != nil
	default:
		_, ok := text(t, f)
		return ok
	}
}
