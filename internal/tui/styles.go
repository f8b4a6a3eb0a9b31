package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	// Sync status colors
	SyncOK      = lipgloss.Color("#95E1A3") // Green
	SyncPending = lipgloss.Color("#FFE66D") // Yellow
	SyncError   = lipgloss.Color("#FF6B6B") // Red
	Offline     = lipgloss.Color("#6C757D") // Gray

	// UI colors
	Primary   = lipgloss.Color("#4ECDC4")
	Secondary = lipgloss.Color("#6C757D")
	Surface   = lipgloss.Color("#16213e")
	TextMuted = lipgloss.Color("#888888")
	Border    = lipgloss.Color("#333333")
)

// Styles
var (
	// Header
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	// Sidebar
	SidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(Border).
			Padding(1, 1)

	// Note list
	NoteListStyle = lipgloss.NewStyle().
			Padding(1, 2)

	// Folder item
	FolderItemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	FolderItemSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(Surface).
				Bold(true)

	// Note item
	NoteItemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	NoteItemSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(Surface).
				Bold(true)

	// Dirty marker for notes not yet uploaded
	PendingStyle = lipgloss.NewStyle().Foreground(SyncPending)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(Border)

	// Input modal
	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	// Help text
	HelpStyle = lipgloss.NewStyle().
			Foreground(TextMuted)
)

// StateStyle returns the style for a sync terminal state
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "success":
		return lipgloss.NewStyle().Foreground(SyncOK).Bold(true)
	case "network_error":
		return lipgloss.NewStyle().Foreground(Offline).Bold(true)
	case "cancelled":
		return lipgloss.NewStyle().Foreground(SyncPending).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(SyncError).Bold(true)
	}
}
