// Package bot interprets incoming Telegram updates against per-conversation
// filesystem trees. Each conversation is a small state machine: Idle, or
// awaiting the next argument of a multi-step command.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/logging"
	"github.com/infinitecloud/infinitecloud/internal/metrics"
	"github.com/infinitecloud/infinitecloud/internal/session"
	"github.com/infinitecloud/infinitecloud/internal/stream"
)

// Inline keyboard callback keywords. callbackMore requests the next page of
// the conversation's pending listing; the fs: family drives the /explorer
// view. Entry names travel in the callback data, which Telegram caps at 64
// bytes, so callbackOpenPrefix plus the name must fit under that limit.
const (
	callbackMore       = "ls:more"
	callbackParent     = "fs:up"
	callbackDeleteDir  = "fs:del"
	callbackBack       = "fs:back"
	callbackOpenPrefix = "fs:open:"

	maxCallbackData = 64
)

// Reply is the outbound side effect of handling one update. The gateway
// sends it after state has been committed and persisted.
type Reply struct {
	Chat fs.ChatID
	Text string
	// Keyboard, when set, is attached to the message.
	Keyboard *tgbotapi.InlineKeyboardMarkup
	// EditMessageID, when non-zero, edits that message in place instead of
	// sending a new one.
	EditMessageID int
	// CallbackID, when non-empty, is a callback query to acknowledge.
	CallbackID string
}

// Interpreter applies updates to trees and sessions. It performs no I/O;
// callers serialize invocations and deliver the returned Reply afterwards.
type Interpreter struct {
	trees    *fs.Store
	sessions *session.Store
	builder  *stream.Builder
}

// New creates an Interpreter over the given state.
func New(trees *fs.Store, sessions *session.Store, builder *stream.Builder) *Interpreter {
	return &Interpreter{trees: trees, sessions: sessions, builder: builder}
}

// HandleUpdate processes one webhook update. It returns the reply to
// deliver (nil when the update warrants none) and whether state changed.
func (in *Interpreter) HandleUpdate(ctx context.Context, update *tgbotapi.Update) (*Reply, bool) {
	switch {
	case update.CallbackQuery != nil:
		metrics.RecordWebhookUpdate("callback")
		return in.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		metrics.RecordWebhookUpdate("message")
		return in.handleMessage(update.Message)
	default:
		metrics.RecordWebhookUpdate("other")
		return nil, false
	}
}

func (in *Interpreter) handleMessage(msg *tgbotapi.Message) (*Reply, bool) {
	chat := fs.ChatID(msg.Chat.ID)
	tree := in.trees.GetOrCreate(chat)
	sess := in.sessions.GetOrCreate(chat)
	sess.EnsurePath(tree)

	if cmd, args, ok := parseCommand(msg); ok {
		// A new command keyword abandons any pending one.
		sess.Reset()
		return in.collectOrRun(chat, tree, sess, msg, cmd, args), true
	}
	if msg.IsCommand() {
		return &Reply{Chat: chat, Text: "Unrecognized command. Use /help to see what I can do."}, true
	}
	if !sess.IsIdle() {
		return in.collectArgument(chat, tree, sess, msg), true
	}
	return in.saveAttachment(chat, tree, sess, msg), true
}

// collectOrRun executes the command if all its arguments are present,
// otherwise parks it in the session and prompts for the next one.
func (in *Interpreter) collectOrRun(chat fs.ChatID, tree *fs.Tree, sess *session.Session, msg *tgbotapi.Message, cmd string, args []string) *Reply {
	prompts := argPrompts[cmd]
	if len(args) < len(prompts) {
		sess.Pending = &session.Pending{Command: cmd, Args: args}
		return &Reply{Chat: chat, Text: currentPathText(sess.CurrentPath) + "\n\n" + prompts[len(args)]}
	}
	return in.execute(chat, tree, sess, msg, cmd, args)
}

// collectArgument consumes one message as the next argument of the pending
// command.
func (in *Interpreter) collectArgument(chat fs.ChatID, tree *fs.Tree, sess *session.Session, msg *tgbotapi.Message) *Reply {
	pending := sess.Pending
	text := msg.Text
	if text == "" {
		prompts := argPrompts[pending.Command]
		return &Reply{Chat: chat, Text: "I need a text answer.\n\n" + prompts[len(pending.Args)]}
	}
	pending.Args = append(pending.Args, text)
	cmd, args := pending.Command, pending.Args
	sess.Reset()
	return in.collectOrRun(chat, tree, sess, msg, cmd, args)
}

func (in *Interpreter) execute(chat fs.ChatID, tree *fs.Tree, sess *session.Session, msg *tgbotapi.Message, cmd string, args []string) *Reply {
	reply, err := in.run(chat, tree, sess, msg, cmd, args)
	if err != nil {
		metrics.RecordCommand(cmd, false)
		logging.Info("command failed",
			zap.Int64("chat", int64(chat)),
			zap.String("command", cmd),
			zap.Error(err))
		sess.Reset()
		return &Reply{Chat: chat, Text: errorMessage(err)}
	}
	metrics.RecordCommand(cmd, true)
	return reply
}

func (in *Interpreter) run(chat fs.ChatID, tree *fs.Tree, sess *session.Session, msg *tgbotapi.Message, cmd string, args []string) (*Reply, error) {
	switch cmd {
	case CmdStart:
		firstName := ""
		if msg.From != nil {
			firstName = msg.From.FirstName
		}
		return &Reply{Chat: chat, Text: startMessage(firstName)}, nil

	case CmdHelp:
		return &Reply{Chat: chat, Text: helpMessage()}, nil

	case CmdInfo:
		return &Reply{Chat: chat, Text: infoMessage()}, nil

	case CmdMkdir:
		path := fs.Normalize(sess.CurrentPath, args[0])
		if err := tree.Mkdir(path); err != nil {
			return nil, err
		}
		_, name := fs.SplitLast(path)
		return &Reply{Chat: chat, Text: createdDirectoryMessage(name, path)}, nil

	case CmdRename:
		path := fs.Normalize(sess.CurrentPath, args[0])
		newName := args[1]
		_, oldName := fs.SplitLast(path)
		if err := tree.Rename(path, newName); err != nil {
			return nil, err
		}
		parent, _ := fs.SplitLast(path)
		return &Reply{Chat: chat, Text: renamedFileMessage(oldName, newName, fs.Join(parent, newName))}, nil

	case CmdMove:
		src := fs.Normalize(sess.CurrentPath, args[0])
		dst := fs.Normalize(sess.CurrentPath, args[1])
		if err := tree.Move(src, dst); err != nil {
			return nil, err
		}
		_, name := fs.SplitLast(src)
		return &Reply{Chat: chat, Text: movedFileMessage(name, src, dst)}, nil

	case CmdLs:
		path := sess.CurrentPath
		if len(args) > 0 {
			path = fs.Normalize(sess.CurrentPath, args[0])
		}
		chunk, err := in.builder.ListPage(chat, path, 0, 0)
		if err != nil {
			return nil, err
		}
		sess.ListToken = chunk.NextToken
		return &Reply{Chat: chat, Text: listingMessage(chunk), Keyboard: moreKeyboard(chunk.NextToken)}, nil

	case CmdExplorer:
		entries, err := tree.List(sess.CurrentPath)
		if err != nil {
			return nil, err
		}
		return &Reply{
			Chat:     chat,
			Text:     currentPathText(sess.CurrentPath),
			Keyboard: explorerKeyboard(sess.CurrentPath, entries),
		}, nil

	case CmdCd:
		path := fs.RootPath
		if len(args) > 0 {
			path = fs.Normalize(sess.CurrentPath, args[0])
		}
		node, err := tree.Resolve(path)
		if err != nil {
			return nil, err
		}
		if !node.IsDirectory() {
			return nil, fmt.Errorf("%s: %w", path, fs.ErrNotADirectory)
		}
		sess.CurrentPath = path
		return &Reply{Chat: chat, Text: currentPathText(path)}, nil

	case CmdDeleteFile:
		path := fs.Normalize(sess.CurrentPath, args[0])
		if err := tree.RemoveFile(path); err != nil {
			return nil, err
		}
		return &Reply{Chat: chat, Text: deletedFileMessage(path)}, nil

	case CmdDeleteDir:
		path := fs.Normalize(sess.CurrentPath, args[0])
		if err := tree.RemoveDir(path); err != nil {
			return nil, err
		}
		return &Reply{Chat: chat, Text: deletedDirectoryMessage(path)}, nil
	}
	return nil, errors.New("unreachable command: " + cmd)
}

// saveAttachment stores a non-command message as a file reference under the
// session's current directory.
func (in *Interpreter) saveAttachment(chat fs.ChatID, tree *fs.Tree, sess *session.Session, msg *tgbotapi.Message) *Reply {
	name, ptr, ok := attachment(msg)
	if !ok {
		return nil
	}
	finalName, err := tree.InsertFile(sess.CurrentPath, name, ptr)
	if err != nil {
		metrics.RecordCommand("save", false)
		return &Reply{Chat: chat, Text: errorMessage(err)}
	}
	metrics.RecordCommand("save", true)
	return &Reply{Chat: chat, Text: createdFileMessage(finalName, fs.Join(sess.CurrentPath, finalName))}
}

// handleCallback serves inline keyboard presses: the listing "More" button
// and the /explorer navigation buttons. Every branch edits the originating
// message in place.
func (in *Interpreter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) (*Reply, bool) {
	if cb.Message == nil {
		return nil, false
	}
	chat := fs.ChatID(cb.Message.Chat.ID)
	tree := in.trees.GetOrCreate(chat)
	sess := in.sessions.GetOrCreate(chat)
	sess.EnsurePath(tree)

	reply := &Reply{Chat: chat, EditMessageID: cb.Message.MessageID, CallbackID: cb.ID}
	switch {
	case cb.Data == callbackMore:
		in.nextListingPage(ctx, sess, reply)
	case cb.Data == callbackParent:
		if sess.CurrentPath != fs.RootPath {
			parent, _ := fs.SplitLast(sess.CurrentPath)
			sess.CurrentPath = parent
		}
		in.renderExplorer(tree, sess, reply)
	case cb.Data == callbackDeleteDir:
		in.deleteCurrentDirectory(tree, sess, reply)
	case cb.Data == callbackBack:
		in.renderExplorer(tree, sess, reply)
	case strings.HasPrefix(cb.Data, callbackOpenPrefix):
		in.openEntry(tree, sess, strings.TrimPrefix(cb.Data, callbackOpenPrefix), reply)
	default:
		reply.Text = listingExpiredText
	}
	return reply, true
}

// nextListingPage redeems the session's pending listing token and renders
// the next page.
func (in *Interpreter) nextListingPage(ctx context.Context, sess *session.Session, reply *Reply) {
	if sess.ListToken == "" {
		reply.Text = listingExpiredText
		return
	}
	chunk, err := in.builder.Redeem(ctx, sess.ListToken)
	if err != nil {
		sess.ListToken = ""
		reply.Text = errorMessage(err)
		return
	}
	sess.ListToken = chunk.NextToken
	reply.Text = listingMessage(chunk)
	reply.Keyboard = moreKeyboard(chunk.NextToken)
}

// renderExplorer rewrites the reply as the explorer view of the session's
// current directory.
func (in *Interpreter) renderExplorer(tree *fs.Tree, sess *session.Session, reply *Reply) {
	entries, err := tree.List(sess.CurrentPath)
	if err != nil {
		reply.Text = errorMessage(err)
		return
	}
	reply.Text = currentPathText(sess.CurrentPath)
	reply.Keyboard = explorerKeyboard(sess.CurrentPath, entries)
}

// openEntry descends into a directory or shows a file's reference.
func (in *Interpreter) openEntry(tree *fs.Tree, sess *session.Session, name string, reply *Reply) {
	path := fs.Join(sess.CurrentPath, name)
	node, err := tree.Resolve(path)
	if err != nil {
		reply.Text = errorMessage(err)
		reply.Keyboard = backKeyboard()
		return
	}
	if node.IsDirectory() {
		sess.CurrentPath = path
		in.renderExplorer(tree, sess, reply)
		return
	}
	reply.Text = explorerFileMessage(node.Name, path)
	reply.Keyboard = backKeyboard()
}

// deleteCurrentDirectory removes the explorer's current directory (it must
// be empty) and navigates back to its parent.
func (in *Interpreter) deleteCurrentDirectory(tree *fs.Tree, sess *session.Session, reply *Reply) {
	path := sess.CurrentPath
	if err := tree.RemoveDir(path); err != nil {
		reply.Text = errorMessage(err)
		reply.Keyboard = backKeyboard()
		return
	}
	parent, _ := fs.SplitLast(path)
	sess.CurrentPath = parent
	in.renderExplorer(tree, sess, reply)
	reply.Text = deletedDirectoryMessage(path) + "\n\n" + reply.Text
}

func moreKeyboard(nextToken string) *tgbotapi.InlineKeyboardMarkup {
	if nextToken == "" {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(moreButtonText, callbackMore),
		),
	)
	return &kb
}

// explorerKeyboard builds one button row per entry, plus parent and delete
// rows when not at the root. Entries whose name would overflow the callback
// data limit get no button; they remain reachable through /ls and /cd.
func explorerKeyboard(path string, entries []fs.Entry) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, e := range entries {
		data := callbackOpenPrefix + e.Name
		if len(data) > maxCallbackData {
			continue
		}
		icon := fileIcon
		if e.Kind == fs.KindDirectory {
			icon = dirIcon
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(icon+" "+e.Name, data),
		))
	}
	if path != fs.RootPath {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(parentDirButtonText, callbackParent),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(deleteDirButtonText, callbackDeleteDir),
			),
		)
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	return &kb
}

func backKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(backButtonText, callbackBack),
		),
	)
	return &kb
}
