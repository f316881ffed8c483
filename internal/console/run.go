package console

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"kvkk-permits/internal/consent/domain"
)

const progressBuffer = 16

// Run starts the console for session and blocks until the operator quits.
func Run(ctx context.Context, session Session, opts ...tea.ProgramOption) error {
	progress := make(chan domain.Snapshot, progressBuffer)
	unsubscribe := session.Subscribe(func(snap domain.Snapshot) {
		// Final snapshots also arrive as operation results, so dropping one here loses nothing.
		select {
		case progress <- snap:
		default:
		}
	})
	defer unsubscribe()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	if _, err := tea.NewProgram(NewModel(ctx, session, progress), opts...).Run(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
