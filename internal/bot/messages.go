package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/stream"
)

const (
	projectURL = "https://github.com/infinitecloud/infinitecloud"
	version    = "1.0.0"

	moreButtonText      = "More >>"
	parentDirButtonText = ".."
	deleteDirButtonText = "\U0001F5D1\uFE0F DELETE THIS DIR"
	backButtonText      = "<< BACK"

	genericErrorText   = "An error has occurred. Please try again."
	listingExpiredText = "This listing has expired. Run /ls again."
	dirIcon            = "\U0001F4C1" // folder
	fileIcon           = "\U0001F4C4" // page
)

// DeliveryFailedText is sent as a best-effort notice when a reply could not
// be delivered.
const DeliveryFailedText = "Could not deliver the previous reply. Please try again."

func helpMessage() string {
	return fmt.Sprintf(`*SAVE FILES*:
Send ONE FILE AT A TIME to the bot (any type of message: _text_, _document_, _audio_, _video_, _image_, _voice_, _sticker_). It is saved in your current directory; use /cd first to change it.

*NAVIGATE* (/cd and /ls):
/cd `+"`<path>`"+` changes the current directory (no argument returns to the root).
/ls lists the current directory, or any `+"`<path>`"+` you give it. Long listings carry a _%s_ button.

*EXPLORE* (/explorer):
/explorer opens a button-driven view of the current directory: tap a directory to enter it, a file to get its reference, _%s_ to go up, or _%s_ to delete the directory you are in (must be empty).

*CREATE DIRECTORY* (/mkdir):
/mkdir `+"`<name>`"+` creates a directory in the current directory (the name cannot include the `+"`/`"+` character).

*RENAME FILES* (/rename\_file):
/rename\_file `+"`<path>` `<new-name>`"+` renames a file in place.

*MOVE FILES* (/move\_file):
/move\_file `+"`<src>` `<dst>`"+` moves a file to a new full path.

*DELETE* (/delete\_file and /delete\_dir):
/delete\_file removes a file; /delete\_dir removes an EMPTY directory.

Arguments can also be sent one message at a time: the bot asks for each missing one.

Troubles? Open an issue on GitHub: [%s/issues](%s/issues)`, moreButtonText, parentDirButtonText, deleteDirButtonText, projectURL, projectURL)
}

func startMessage(firstName string) string {
	greet := "Hello!"
	if firstName != "" {
		greet = fmt.Sprintf("Hello %s!", firstName)
	}
	return fmt.Sprintf(`%s
Welcome on *Infinite Cloud*!

Here's some help to start:

%s

To see this help message again, use the /help command`, greet, helpMessage())
}

func infoMessage() string {
	return fmt.Sprintf(`*Infinite Cloud Bot* - infinite free cloud storage on Telegram

Usage instructions: /help

More info and source code: [%s](%s)

_Version: %s_`, projectURL, projectURL, version)
}

func currentPathText(path string) string {
	return fmt.Sprintf("CURRENT PATH:\n\n`%s`", path)
}

func createdDirectoryMessage(dirName, path string) string {
	return fmt.Sprintf("Directory *%s* CREATED at `%s`", dirName, path)
}

func createdFileMessage(fileName, path string) string {
	return fmt.Sprintf("File *%s* CREATED at `%s`", fileName, path)
}

func renamedFileMessage(oldName, newName, path string) string {
	return fmt.Sprintf("File *%s* RENAMED.\n\nNew name: *%s*\nPath: `%s`", oldName, newName, path)
}

func movedFileMessage(fileName, fromPath, toPath string) string {
	return fmt.Sprintf("File *%s* MOVED.\n\nFrom: `%s`\nTo: `%s`", fileName, fromPath, toPath)
}

func deletedFileMessage(path string) string {
	return fmt.Sprintf("File `%s` DELETED", path)
}

func deletedDirectoryMessage(path string) string {
	return fmt.Sprintf("Directory `%s` DELETED", path)
}

func explorerFileMessage(fileName, path string) string {
	return fmt.Sprintf("File: *%s*\nPath: `%s`", fileName, path)
}

// listingMessage renders one page of a directory listing.
func listingMessage(chunk *stream.Chunk) string {
	var b strings.Builder
	b.WriteString(currentPathText(chunk.Path))
	b.WriteString("\n")
	if chunk.Total == 0 {
		b.WriteString("\n_(empty directory)_")
		return b.String()
	}
	for _, e := range chunk.Entries {
		icon := fileIcon
		if e.Kind == fs.KindDirectory {
			icon = dirIcon
		}
		b.WriteString(fmt.Sprintf("\n%s %s", icon, e.Name))
	}
	if chunk.Total > int64(len(chunk.Entries)) {
		first := chunk.Offset + 1
		last := chunk.Offset + int64(len(chunk.Entries))
		b.WriteString(fmt.Sprintf("\n\n_%d-%d of %d_", first, last, chunk.Total))
	}
	return b.String()
}

// errorMessage maps a filesystem or streaming error to a human-readable
// reply. Unknown errors get the generic text.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotFound):
		return fmt.Sprintf("NOT FOUND: %v", trimErr(err, fs.ErrNotFound))
	case errors.Is(err, fs.ErrNotADirectory):
		return fmt.Sprintf("NOT A DIRECTORY: %v", trimErr(err, fs.ErrNotADirectory))
	case errors.Is(err, fs.ErrAlreadyExists):
		return fmt.Sprintf("ALREADY EXISTS: %v", trimErr(err, fs.ErrAlreadyExists))
	case errors.Is(err, fs.ErrInvalidOperation):
		return fmt.Sprintf("INVALID OPERATION: %v", trimErr(err, fs.ErrInvalidOperation))
	case errors.Is(err, stream.ErrExpired):
		return listingExpiredText
	default:
		return genericErrorText
	}
}

// trimErr strips the sentinel suffix fs errors carry ("path: not found")
// leaving just the subject for display.
func trimErr(err error, sentinel error) string {
	msg := err.Error()
	suffix := ": " + sentinel.Error()
	return "`" + strings.TrimSuffix(msg, suffix) + "`"
}
