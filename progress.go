package provision

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var statusStyle = map[StepStatus]struct {
	icon  string
	color *color.Color
}{
	StepPending:    {"○", color.New(color.FgWhite)},
	StepInProgress: {"◐", color.New(color.FgYellow)},
	StepCompleted:  {"✓", color.New(color.FgGreen)},
	StepFailed:     {"✗", color.New(color.FgRed)},
	StepSkipped:    {"↷", color.New(color.FgCyan)},
}

// DisplayProgress writes a progress bar followed by one line per step.
func (m *TransactionManager) DisplayProgress(w io.Writer) error {
	state := m.ledger.State()
	if state == nil {
		return ErrNoTransaction
	}
	return RenderProgress(w, state)
}

// RenderProgress writes a progress bar and a coloured step list for state.
func RenderProgress(w io.Writer, state *TransactionState) error {
	done := 0
	for _, step := range state.Steps {
		if step.Status.Done() {
			done++
		}
	}

	header := color.New(color.Bold)
	header.Fprintf(w, "Transaction %s", state.ID)
	if state.Mode != "" || state.NodeType != "" {
		fmt.Fprintf(w, " (mode=%s node=%s)", state.Mode, state.NodeType)
	}
	fmt.Fprintln(w)

	if state.TotalSteps > 0 {
		bar := progressbar.NewOptions(state.TotalSteps,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("provisioning"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
		)
		if err := bar.Set(done); err != nil {
			return fmt.Errorf("failed to render progress: %w", err)
		}
		fmt.Fprintln(w)
	}

	for i, step := range state.Steps {
		style := statusStyle[step.Status]
		style.color.Fprintf(w, "  %s ", style.icon)
		fmt.Fprintf(w, "%2d. %-40s %s", i+1, step.Description, step.Status)
		if step.Error != "" {
			color.New(color.FgRed).Fprintf(w, "  %s", step.Error)
		}
		fmt.Fprintln(w)
	}
	return nil
}
