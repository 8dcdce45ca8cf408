package bot

import (
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/infinitecloud/infinitecloud/internal/fs"
)

// Bot commands.
const (
	CmdStart      = "start"
	CmdHelp       = "help"
	CmdInfo       = "info"
	CmdMkdir      = "mkdir"
	CmdRename     = "rename_file"
	CmdMove       = "move_file"
	CmdLs         = "ls"
	CmdCd         = "cd"
	CmdExplorer   = "explorer"
	CmdDeleteFile = "delete_file"
	CmdDeleteDir  = "delete_dir"
)

// argPrompts lists, per command, the prompt sent for each argument that was
// not supplied inline. Commands absent from the map take no required
// arguments.
var argPrompts = map[string][]string{
	CmdMkdir:      {"Send me the name of the new DIRECTORY"},
	CmdRename:     {"Send me the PATH of the file to RENAME", "Send me the new NAME"},
	CmdMove:       {"Send me the PATH of the file to MOVE", "Send me the DESTINATION path"},
	CmdDeleteFile: {"Send me the PATH of the file to DELETE"},
	CmdDeleteDir:  {"Send me the PATH of the directory to DELETE"},
}

// knownCommands is the full recognized set, including the zero- and
// optional-argument ones.
var knownCommands = map[string]bool{
	CmdStart: true, CmdHelp: true, CmdInfo: true,
	CmdMkdir: true, CmdRename: true, CmdMove: true,
	CmdLs: true, CmdCd: true, CmdExplorer: true,
	CmdDeleteFile: true, CmdDeleteDir: true,
}

// parseCommand extracts the command keyword and inline arguments from a
// message. ok is false when the message is not a recognized command.
func parseCommand(msg *tgbotapi.Message) (cmd string, args []string, ok bool) {
	if !msg.IsCommand() {
		return "", nil, false
	}
	cmd = strings.ToLower(msg.Command())
	if !knownCommands[cmd] {
		return "", nil, false
	}
	return cmd, strings.Fields(msg.CommandArguments()), true
}

// attachment extracts a content reference from a non-command message:
// the platform file id for media, or the message itself for plain text.
// The returned name is a suggestion; collisions are resolved on insert.
func attachment(msg *tgbotapi.Message) (name string, ptr fs.ContentPointer, ok bool) {
	ptr = fs.ContentPointer{
		ChatID:    fs.ChatID(msg.Chat.ID),
		MessageID: msg.MessageID,
	}
	short := uuid.NewString()[:8]

	switch {
	case msg.Document != nil:
		d := msg.Document
		ptr.FileID, ptr.MimeType, ptr.Size = d.FileID, d.MimeType, int64(d.FileSize)
		name = d.FileName
		if name == "" {
			name = "document_" + short
		}
	case msg.Photo != nil && len(msg.Photo) > 0:
		// Telegram sends multiple sizes; keep the largest.
		p := msg.Photo[len(msg.Photo)-1]
		ptr.FileID, ptr.MimeType, ptr.Size = p.FileID, "image/jpeg", int64(p.FileSize)
		name = "photo_" + short + ".jpg"
	case msg.Video != nil:
		v := msg.Video
		ptr.FileID, ptr.MimeType, ptr.Size = v.FileID, v.MimeType, int64(v.FileSize)
		name = v.FileName
		if name == "" {
			name = "video_" + short + ".mp4"
		}
	case msg.Audio != nil:
		a := msg.Audio
		ptr.FileID, ptr.MimeType, ptr.Size = a.FileID, a.MimeType, int64(a.FileSize)
		name = a.FileName
		if name == "" {
			name = "audio_" + short
		}
	case msg.Voice != nil:
		v := msg.Voice
		ptr.FileID, ptr.MimeType, ptr.Size = v.FileID, v.MimeType, int64(v.FileSize)
		name = "voice_" + short + ".ogg"
	case msg.Sticker != nil:
		s := msg.Sticker
		ptr.FileID, ptr.MimeType, ptr.Size = s.FileID, "image/webp", int64(s.FileSize)
		name = "sticker_" + short + ".webp"
	case msg.Text != "":
		ptr.MimeType, ptr.Size = "text/plain", int64(len(msg.Text))
		name = textNoteName(msg.Text, short)
	default:
		return "", fs.ContentPointer{}, false
	}
	return name, ptr, true
}

// textNoteName derives a file name from the first line of a text message.
// The name must stay valid UTF-8: a byte-boundary cut would survive in the
// tree but not in the JSON snapshot, breaking the path after a restart.
func textNoteName(text, short string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.ToValidUTF8(line, "")
	line = strings.ReplaceAll(line, fs.Separator, "_")
	line = strings.TrimSpace(line)
	if len(line) > 32 {
		cut := 32
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = strings.TrimSpace(line[:cut])
	}
	if line == "" {
		return "note_" + short + ".txt"
	}
	return line + ".txt"
}
