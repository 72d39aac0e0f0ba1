package tui

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrPromptCancelled is returned when the user leaves the prompt with esc or
// ctrl+c.
var ErrPromptCancelled = errors.New("password prompt cancelled")

type passwordModel struct {
	input     textinput.Model
	done      bool
	cancelled bool
}

func newPasswordModel(prompt string) passwordModel {
	in := textinput.New()
	in.Prompt = prompt
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.Focus()
	return passwordModel{input: in}
}

func (m passwordModel) Init() tea.Cmd { return textinput.Blink }

func (m passwordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m passwordModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return m.input.View() + "\n"
}

// ReadPassword prompts on a terminal with masked echo.
func ReadPassword(ctx context.Context, in io.Reader, out io.Writer, prompt string) (string, error) {
	p := tea.NewProgram(newPasswordModel(prompt), tea.WithInput(in), tea.WithOutput(out), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m := final.(passwordModel)
	if m.cancelled {
		return "", ErrPromptCancelled
	}
	return m.input.Value(), nil
}
