package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const sidebarWidth = 24

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebar := m.renderSidebar()
	noteList := m.renderNoteList()
	statusBar := m.renderStatusBar()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, noteList)

	switch m.mode {
	case ModeAddNote, ModeAddFolder, ModeEditNote:
		mainContent = lipgloss.Place(
			m.width, m.height-2,
			lipgloss.Center, lipgloss.Center,
			m.renderModal(),
			lipgloss.WithWhitespaceChars(" "),
		)
	case ModeHelp:
		mainContent = m.renderHelp()
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, statusBar)
}

func (m Model) renderSidebar() string {
	var s strings.Builder

	s.WriteString(HeaderStyle.Render("IronNotes") + "\n")
	s.WriteString(HelpStyle.Render(time.Now().Format("15:04")) + "\n")
	s.WriteString(lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", sidebarWidth-5)) + "\n\n")

	for i := range m.folders {
		f := &m.folders[i]
		cursor := "  "
		style := FolderItemStyle
		if i == m.folderCursor {
			cursor = "❯ "
			if m.pane == PaneFolders {
				style = FolderItemSelectedStyle
			}
		}
		line := fmt.Sprintf("%s%-12s %d", cursor, truncate(folderLabel(f), 12), f.NotesCount)
		if f.LocalModified {
			line += PendingStyle.Render(" •")
		}
		s.WriteString(style.Render(line) + "\n")
	}

	s.WriteString("\n" + HelpStyle.Render("f new folder"))
	return SidebarStyle.Width(sidebarWidth).Height(m.height - 2).Render(s.String())
}

func (m Model) renderNoteList() string {
	width := m.width - sidebarWidth - 2
	f := m.currentFolder()
	if f == nil {
		return NoteListStyle.Width(width).Height(m.height - 2).Render("No folder selected")
	}

	var s strings.Builder
	header := fmt.Sprintf("%s (%d)", folderLabel(f), len(m.notes))
	s.WriteString(HeaderStyle.Render(header) + "\n")
	s.WriteString(lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", max(width-4, 1))) + "\n\n")

	if len(m.notes) == 0 {
		s.WriteString(HelpStyle.Render("  No notes. Press 'a' to add one."))
	}

	for i, n := range m.notes {
		cursor := "  "
		style := NoteItemStyle
		if i == m.noteCursor && m.pane == PaneNotes {
			cursor = "❯ "
			style = NoteItemSelectedStyle
		}
		modified := time.UnixMilli(n.ModifiedDate).Format("Jan 02 15:04")
		line := fmt.Sprintf("%s%-*s %s", cursor, max(width-22, 10), truncate(n.Snippet, max(width-22, 10)), HelpStyle.Render(modified))
		if n.LocalModified {
			line += PendingStyle.Render(" •")
		}
		s.WriteString(style.Render(line) + "\n")
	}

	return NoteListStyle.Width(width).Height(m.height - 2).Render(s.String())
}

func (m Model) renderStatusBar() string {
	var sync string
	switch {
	case m.syncing:
		sync = m.spinner.View() + " syncing"
	case m.lastSync != "":
		sync = StateStyle(m.lastSync).Render("● " + m.lastSync)
	case m.manager == nil:
		sync = lipgloss.NewStyle().Foreground(Offline).Render("○ offline")
	default:
		sync = HelpStyle.Render("○ not synced")
	}

	help := "a add • e edit • d delete • R sync • ? help • q quit"
	msg := m.message
	if msg == "" {
		msg = help
	}
	return StatusBarStyle.Width(m.width).Render(sync + "  " + msg)
}

func (m Model) renderModal() string {
	var title string
	switch m.mode {
	case ModeAddNote:
		title = "New note in " + folderLabel(m.currentFolder())
	case ModeAddFolder:
		title = "New folder"
	case ModeEditNote:
		title = "Edit note"
	}
	body := HeaderStyle.Render(title) + "\n\n" + m.input.View() + "\n\n" +
		HelpStyle.Render("enter save • esc cancel")
	return ModalStyle.Render(body)
}

func (m Model) renderHelp() string {
	bindings := []struct{ keys, desc string }{
		{"↑/k ↓/j", "move"},
		{"←/h →/l tab", "switch pane"},
		{"a", "add note to the selected folder"},
		{"f", "create folder"},
		{"e", "edit the selected note"},
		{"d", "move note or folder to trash"},
		{"R", "sync now"},
		{"esc", "cancel a running sync"},
		{"q", "quit"},
	}

	var s strings.Builder
	s.WriteString(HeaderStyle.Render("Keys") + "\n\n")
	for _, b := range bindings {
		fmt.Fprintf(&s, "  %-14s %s\n", b.keys, HelpStyle.Render(b.desc))
	}
	s.WriteString("\n" + HelpStyle.Render("Notes marked • are waiting to be uploaded. Press any key to close."))
	return lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, ModalStyle.Render(s.String()))
}
