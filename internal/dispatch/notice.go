package dispatch

import (
	"fmt"

	"github.com/telnet2/wamux/internal/permission"
)

// Texts of the replies the dispatcher sends on its own.
const (
	NoticePrivateMode = "*🚫 This bot is in private mode.*\n_Only the owner and sudo users of this session can use commands._"
	NoticeOwnerOnly   = "🚫 This command is reserved for the owner."
	NoticeSudoOnly    = "🚫 This command is reserved for sudo users and the owner."
	NoticeGroupOnly   = "❌ This command must be used in a group."
	NoticeAdminOnly   = "⛔ Only group admins can use this command."
	NoticeBotAdmin    = "⚠️ I need to be a group admin to run this command."
	NoticeFailure     = "⚠️ An error occurred while running this command."

	// ReactionUnknown is the reaction put on an unrecognized command.
	ReactionUnknown = "❌"
)

// UnknownCommandNotice tells the sender a command does not exist.
// suggestion may be empty.
func UnknownCommandNotice(name, prefix, suggestion string) string {
	text := fmt.Sprintf("❌ Command *%s* not recognized.\n\n📌 Type *%smenu* to see the available commands.", name, prefix)
	if suggestion != "" {
		text += fmt.Sprintf("\n💡 Did you mean *%s%s*?", prefix, suggestion)
	}
	return text
}

// DeniedNotice returns the reply for a denial reason.
func DeniedNotice(reason permission.Reason) string {
	switch reason {
	case permission.ReasonPrivateMode:
		return NoticePrivateMode
	case permission.ReasonOwnerOnly:
		return NoticeOwnerOnly
	case permission.ReasonSudoOnly:
		return NoticeSudoOnly
	case permission.ReasonGroupOnly:
		return NoticeGroupOnly
	case permission.ReasonAdminOnly:
		return NoticeAdminOnly
	case permission.ReasonBotAdminOnly:
		return NoticeBotAdmin
	default:
		return NoticeFailure
	}
}
