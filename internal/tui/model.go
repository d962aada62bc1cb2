// Package tui provides the Bubble Tea timer screen.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuimer/internal/countdown"
	"github.com/verte-zerg/tuimer/internal/model"
	"github.com/verte-zerg/tuimer/internal/schedule"
)

// Factory builds a controller for spec. onAlarm must be passed through to
// the controller options so the screen can report finished timers.
type Factory func(spec model.TimerSpec, onAlarm func(model.AlarmRecord)) (*countdown.Controller, error)

type callbackMsg func()

// Model implements the Bubble Tea timer screen.
type Model struct {
	loop    *schedule.Loop
	factory Factory
	log     *logrus.Entry

	timers   []*countdown.Controller
	selected int

	width  int
	height int

	keys keyMap
	help help.Model
	bar  progress.Model

	adding   bool
	input    textinput.Model
	inputErr string

	status string
}

// NewModel constructs the timer screen with one controller per spec.
func NewModel(loop *schedule.Loop, factory Factory, specs []model.TimerSpec, logger *logrus.Entry) (*Model, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Model{
		loop:    loop,
		factory: factory,
		log:     logger,
		keys:    newKeyMap(),
		help:    help.New(),
		bar:     progress.New(progress.WithSolidFill("#C89A3A"), progress.WithoutPercentage()),
	}
	m.input = textinput.New()
	m.input.Prompt = "new timer> "
	m.input.Placeholder = "tea 3:00"
	m.input.CharLimit = 64
	for _, spec := range specs {
		if err := m.addTimer(spec); err != nil {
			m.closeAll()
			return nil, err
		}
	}
	return m, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.waitForCallback()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case callbackMsg:
		msg()
		return m, m.waitForCallback()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if m.adding {
			return m.updateInput(msg)
		}
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

// Timers returns snapshots of every timer in display order.
func (m *Model) Timers() []countdown.State {
	states := make([]countdown.State, len(m.timers))
	for i, t := range m.timers {
		states[i] = t.State()
	}
	return states
}

// Close releases every timer.
func (m *Model) Close() {
	m.closeAll()
}

func (m *Model) waitForCallback() tea.Cmd {
	if m.loop == nil {
		return nil
	}
	loop := m.loop
	return func() tea.Msg {
		select {
		case fn := <-loop.C():
			return callbackMsg(fn)
		case <-loop.Done():
			return nil
		}
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.closeAll()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Add):
		return m.startInput()
	case msg.Type == tea.KeyEsc:
		if t := m.expandedTimer(); t != nil {
			t.SetExpanded(false)
		}
		return m, nil
	}

	t := m.current()
	if t == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.expandedTimer() == nil && m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.expandedTimer() == nil && m.selected < len(m.timers)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Toggle):
		st := t.State()
		switch {
		case st.Running && st.RemainingSeconds > 0:
			t.Pause()
		case !st.Running:
			t.Start()
		}
	case key.Matches(msg, m.keys.Reset):
		t.Reset()
	case key.Matches(msg, m.keys.Stop):
		t.Stop()
		m.status = ""
	case key.Matches(msg, m.keys.Expand):
		if expanded := m.expandedTimer(); expanded != nil && expanded != t {
			expanded.SetExpanded(false)
		}
		t.ToggleExpanded()
	case key.Matches(msg, m.keys.Remove):
		m.remove(t)
	}
	return m, nil
}

func (m *Model) startInput() (tea.Model, tea.Cmd) {
	m.adding = true
	m.inputErr = ""
	m.input.Reset()
	return m, m.input.Focus()
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.closeAll()
		return m, tea.Quit
	case tea.KeyEsc:
		m.adding = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		spec, err := parseTimerInput(m.input.Value())
		if err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		if err := m.addTimer(spec); err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		m.selected = len(m.timers) - 1
		m.adding = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) addTimer(spec model.TimerSpec) error {
	ctrl, err := m.factory(spec, m.onAlarm)
	if err != nil {
		return fmt.Errorf("failed to create timer: %w", err)
	}
	m.timers = append(m.timers, ctrl)
	return nil
}

func (m *Model) remove(t *countdown.Controller) {
	for i, c := range m.timers {
		if c != t {
			continue
		}
		t.Close()
		m.timers = append(m.timers[:i], m.timers[i+1:]...)
		break
	}
	if m.selected >= len(m.timers) && m.selected > 0 {
		m.selected = len(m.timers) - 1
	}
}

func (m *Model) onAlarm(rec model.AlarmRecord) {
	m.status = fmt.Sprintf("%s finished at %s", rec.Label, rec.FiredAt.Format("15:04:05"))
	m.log.WithFields(logrus.Fields{
		"timer":    rec.Label,
		"sounded":  rec.Sounded,
		"notified": rec.Notified,
	}).Info("alarm")
}

func (m *Model) current() *countdown.Controller {
	if t := m.expandedTimer(); t != nil {
		return t
	}
	if m.selected < 0 || m.selected >= len(m.timers) {
		return nil
	}
	return m.timers[m.selected]
}

func (m *Model) expandedTimer() *countdown.Controller {
	for _, t := range m.timers {
		if t.State().Expanded {
			return t
		}
	}
	return nil
}

func (m *Model) closeAll() {
	for _, t := range m.timers {
		t.Close()
	}
}

// parseTimerInput accepts "DURATION" or "LABEL... DURATION".
func parseTimerInput(input string) (model.TimerSpec, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return model.TimerSpec{}, fmt.Errorf("enter a duration such as 90, 1:30 or 1m30s")
	}
	secs, err := countdown.ParseSeconds(fields[len(fields)-1])
	if err != nil {
		return model.TimerSpec{}, err
	}
	return model.TimerSpec{
		Label:   strings.Join(fields[:len(fields)-1], " "),
		Seconds: secs,
	}, nil
}
