package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws load progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	model   *loadModel
	program *tea.Program
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
func NewTUIRenderer(cfg Config) *TUIRenderer {
	m := newLoadModel(cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		m.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, model: m, done: make(chan struct{})}
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithInput(nil)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	select {
	case <-r.done:
	case <-time.After(500 * time.Millisecond):
		program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

type progressMsg ProgressEvent
type completeMsg CompletionStats

// loadModel is the bubbletea model for load progress.
type loadModel struct {
	title    string
	event    ProgressEvent
	complete bool
	stats    CompletionStats
	width    int
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newLoadModel(title string) *loadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &loadModel{
		title:   title,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorLime),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *loadModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *loadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case progressMsg:
		m.event = ProgressEvent(msg)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *loadModel) View() string {
	width := max(m.width-4, 40)
	if m.complete {
		return m.renderComplete(width)
	}

	lines := []string{m.renderStages()}
	if m.event.Total > 0 {
		pct := float64(m.event.Current) / float64(m.event.Total)
		lines = append(lines,
			m.bar.ViewAs(min(pct, 1))+"  "+m.styles.Active.Render(fmt.Sprintf("%3.0f%%", pct*100)),
			m.styles.Label.Render(fmt.Sprintf("%d / %d chunks", m.event.Current, m.event.Total)))
	} else {
		lines = append(lines, m.spinner.View()+" "+m.event.Stage.String()+"...")
	}

	title := "amanrag load"
	if m.title != "" {
		title += " • " + m.title
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Panel.Width(width).Render(strings.Join(lines, "\n")),
	) + "\n"
}

func (m *loadModel) renderStages() string {
	parts := make([]string, 0, StageComplete)
	for s := StageRead; s < StageComplete; s++ {
		switch {
		case s < m.event.Stage:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == m.event.Stage:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *loadModel) renderComplete(width int) string {
	lines := []string{
		m.styles.Success.Render("✓ Load complete"),
		"",
		m.styles.Label.Render("Loaded:   ") + m.styles.Active.Render(fmt.Sprint(m.stats.Chunks)),
		m.styles.Label.Render("Embedded: ") + m.styles.Active.Render(fmt.Sprint(m.stats.Embedded)),
		m.styles.Label.Render("Total:    ") + m.styles.Active.Render(fmt.Sprint(m.stats.Total)),
		m.styles.Label.Render("Duration: ") + m.styles.Active.Render(m.stats.Duration.Round(100*time.Millisecond).String()),
	}
	return m.styles.Panel.Width(width).Render(strings.Join(lines, "\n")) + "\n"
}

var _ Renderer = (*TUIRenderer)(nil)
