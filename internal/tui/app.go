// Package tui is the operator surface for the conflict queue: a flat list of
// pending conflicts with single-key resolution actions.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
	"github.com/esoto/expense-tracker-sub008/internal/service"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	dupStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	simStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Repos and Services are the dependencies the app needs; wiring happens in
// the command layer.
type Repos struct {
	Expenses  *repository.ExpenseRepo
	Conflicts *repository.ConflictRepo
}

type Services struct {
	Resolver     *service.Resolver
	AutoResolver *service.AutoResolver
}

// conflictView pairs a conflict with its two expenses for rendering.
// Either expense may be nil.
type conflictView struct {
	Conflict repository.Conflict
	Existing *repository.Expense
	New      *repository.Expense
}

// App is the review queue model.
type App struct {
	ctx      context.Context
	repos    Repos
	services Services
	operator string

	pending    []conflictView
	cursor     int
	lastUndoID string
	status     string
}

func New(ctx context.Context, repos Repos, services Services, operator string) *App {
	if operator == "" {
		operator = "operator"
	}
	return &App{ctx: ctx, repos: repos, services: services, operator: operator}
}

type conflictsMsg []conflictView
type statusMsg string
type errMsg struct{ err error }

func (a *App) Init() tea.Cmd {
	return a.loadConflicts()
}

func (a *App) loadConflicts() tea.Cmd {
	return func() tea.Msg {
		conflicts, err := a.repos.Conflicts.ListPending(a.ctx, repository.ConflictFilters{})
		if err != nil {
			return errMsg{err}
		}
		views := make([]conflictView, 0, len(conflicts))
		for _, c := range conflicts {
			existing, _ := a.repos.Expenses.Get(a.ctx, c.ExistingExpenseID)
			var newExp *repository.Expense
			if c.NewExpenseID != nil {
				newExp, _ = a.repos.Expenses.Get(a.ctx, *c.NewExpenseID)
			}
			views = append(views, conflictView{Conflict: c, Existing: existing, New: newExp})
		}
		return conflictsMsg(views)
	}
}

func (a *App) resolveCmd(id string, action service.Action) tea.Cmd {
	return func() tea.Msg {
		if err := a.services.Resolver.Resolve(a.ctx, id, action, a.operator); err != nil {
			return errMsg{err}
		}
		return statusMsg(fmt.Sprintf("resolved %s (%s)", shortID(id), action.Name()))
	}
}

func (a *App) ignoreCmd(id string) tea.Cmd {
	return func() tea.Msg {
		if err := a.services.Resolver.Ignore(a.ctx, id); err != nil {
			return errMsg{err}
		}
		return statusMsg("ignored " + shortID(id))
	}
}

func (a *App) undoCmd(id string) tea.Cmd {
	return func() tea.Msg {
		if err := a.services.Resolver.Undo(a.ctx, id); err != nil {
			return errMsg{err}
		}
		return statusMsg("undid " + shortID(id))
	}
}

func (a *App) autoResolveCmd() tea.Cmd {
	return func() tea.Msg {
		n, err := a.services.AutoResolver.ResolveObviousDuplicates(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg(fmt.Sprintf("auto-resolved %d", n))
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		switch m.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "up", "k":
			if a.cursor > 0 {
				a.cursor--
			}
		case "down", "j":
			if a.cursor < len(a.pending)-1 {
				a.cursor++
			}
		case "e":
			if cv, ok := a.current(); ok {
				a.lastUndoID = cv.Conflict.ID
				return a, a.resolveCmd(cv.Conflict.ID, service.KeepExisting{})
			}
		case "n":
			if cv, ok := a.current(); ok {
				a.lastUndoID = cv.Conflict.ID
				return a, a.resolveCmd(cv.Conflict.ID, service.KeepNew{})
			}
		case "b":
			if cv, ok := a.current(); ok {
				a.lastUndoID = cv.Conflict.ID
				return a, a.resolveCmd(cv.Conflict.ID, service.KeepBoth{})
			}
		case "i":
			if cv, ok := a.current(); ok {
				return a, a.ignoreCmd(cv.Conflict.ID)
			}
		case "u":
			if a.lastUndoID != "" {
				id := a.lastUndoID
				a.lastUndoID = ""
				return a, a.undoCmd(id)
			}
			a.status = "nothing to undo"
		case "a":
			a.status = "auto-resolving..."
			return a, a.autoResolveCmd()
		case "r":
			return a, a.loadConflicts()
		}
	case conflictsMsg:
		a.pending = []conflictView(m)
		if a.cursor >= len(a.pending) {
			a.cursor = 0
		}
	case statusMsg:
		a.status = string(m)
		return a, a.loadConflicts()
	case errMsg:
		a.status = "error: " + m.err.Error()
	}
	return a, nil
}

func (a *App) View() string {
	out := titleStyle.Render("Conflict Review Queue") + "\n"
	if len(a.pending) == 0 {
		out += "No pending conflicts.\n"
		out += dimStyle.Render("[a] Auto-resolve  [u] Undo last  [r] Refresh  [q] Quit")
		if a.status != "" {
			out += "\n" + a.status
		}
		return out
	}

	for i, cv := range a.pending {
		marker := " "
		if i == a.cursor {
			marker = "▶"
		}
		c := cv.Conflict
		typeLabel := simStyle.Render(c.ConflictType)
		if c.ConflictType == repository.ConflictDuplicate {
			typeLabel = dupStyle.Render(c.ConflictType)
		}
		out += fmt.Sprintf("%s %s  %-9s  %5.1f  %s\n",
			marker, shortID(c.ID), typeLabel, c.SimilarityScore, expenseLine(cv.Existing))
	}

	cv := a.pending[a.cursor]
	out += "\n" + titleStyle.Render(fmt.Sprintf("Conflict %d of %d", a.cursor+1, len(a.pending))) + "\n"
	out += fmt.Sprintf("Existing: %s\n", expenseLine(cv.Existing))
	out += fmt.Sprintf("New:      %s\n", expenseLine(cv.New))
	out += dimStyle.Render("[e] Keep existing  [n] Keep new  [b] Keep both  [i] Ignore  [u] Undo last  [a] Auto-resolve  [r] Refresh  [q] Quit")
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) current() (conflictView, bool) {
	if len(a.pending) == 0 || a.cursor >= len(a.pending) {
		return conflictView{}, false
	}
	return a.pending[a.cursor], true
}

func expenseLine(e *repository.Expense) string {
	if e == nil {
		return "<missing>"
	}
	return fmt.Sprintf("%s  %-30s  %8s %s  %s",
		e.TransactionDate.Format("2006-01-02"), e.MerchantName, e.Amount.StringFixed(2), e.Currency, e.Status)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
