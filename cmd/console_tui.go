// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

type consoleTickMsg time.Time

type consoleEventMsg transceiver.Event

// consoleModel renders live counters, timing and the recent completions.
type consoleModel struct {
	b        *bridge
	cancel   func()
	log      viewport.Model
	lines    []string
	maxLines int
	width    int
	height   int
	quitting bool
}

func newConsoleModel(b *bridge, cancel func()) *consoleModel {
	return &consoleModel{
		b:        b,
		cancel:   cancel,
		log:      viewport.New(80, 10),
		maxLines: 200,
	}
}

func consoleTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m *consoleModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.b.events
		if !ok {
			return nil
		}
		return consoleEventMsg(ev)
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(consoleTick(), m.waitEvent())
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = msg.Width
		if msg.Height > 16 {
			m.log.Height = msg.Height - 14
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		default:
			if len(msg.String()) == 1 {
				m.pushLine(consoleKeyLine(m.b, msg.String()[0]))
			}
		}
	case consoleTickMsg:
		return m, consoleTick()
	case consoleEventMsg:
		m.pushLine(fmt.Sprintf("token=%d op=%s result=%s len=%d",
			msg.Token, msg.Op, msg.Result, len(msg.Data)))
		return m, m.waitEvent()
	}
	return m, nil
}

func (m *consoleModel) pushLine(line string) {
	if line == "" {
		return
	}
	m.lines = append(m.lines, line)
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
	m.log.SetContent(strings.Join(m.lines, "\n"))
	m.log.GotoBottom()
}

// consoleKeyLine handles the single-char commands that make sense in the
// full-screen console and returns the line to append.
func consoleKeyLine(b *bridge, key byte) string {
	switch key {
	case 'M':
		mode := transceiver.ModeController
		if b.dev.Engine().Mode() == transceiver.ModeController {
			mode = transceiver.ModeResponder
		}
		if b.dev.Engine().SetMode(mode, transceiver.TokenNone) {
			return fmt.Sprintf("switching to %s", mode)
		}
		return "mode change rejected"
	case 'r':
		b.dev.Reset()
		return "transceiver reset"
	case 'u':
		return fmt.Sprintf("uid: %s", b.dev.Root().UID())
	}
	return ""
}

func (m *consoleModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	c := m.b.dev.Counters()
	e := m.b.dev.Engine()

	sb.WriteString(titleStyle.Render("dmxbridge console") + "\n\n")
	row := func(label string, value interface{}) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%-20s", label)))
		sb.WriteString(valueStyle.Render(fmt.Sprintf("%v", value)))
		sb.WriteString("\n")
	}
	row("uid", m.b.dev.Root().UID())
	row("mode", e.Mode())
	row("state", e.StateName())
	row("dmx frames", c.DMXFrames())
	row("rdm frames", c.RDMFrames())
	row("short / len / csum", fmt.Sprintf("%d / %d / %d",
		c.RDMShortFrame(), c.RDMLengthMismatch(), c.RDMChecksumInvalid()))
	row("break / mark", fmt.Sprintf("%dus / %dus", e.BreakTime(), e.MarkTime()))

	sb.WriteString("\n" + m.log.View() + "\n")
	sb.WriteString(footerStyle.Render("M toggle mode · r reset · u uid · q quit"))
	return sb.String()
}

func runConsoleTUI(b *bridge) error {
	ctx, cancel := signalContext()
	defer cancel()
	go b.run(ctx)

	program := tea.NewProgram(newConsoleModel(b, cancel), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
