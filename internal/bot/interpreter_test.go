package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/session"
	"github.com/infinitecloud/infinitecloud/internal/stream"
)

const testChat int64 = 99

func newInterpreter(t *testing.T, pageSize int) (*Interpreter, *fs.Store, *session.Store) {
	t.Helper()
	trees := fs.NewStore()
	sessions := session.NewStore(0)
	tok := stream.NewTokenizer("test-secret", time.Hour)
	builder := stream.NewBuilder(trees, tok, nil, pageSize, 1024)
	return New(trees, sessions, builder), trees, sessions
}

var nextMessageID = 1000

func commandUpdate(text string) *tgbotapi.Update {
	nextMessageID++
	keyword := strings.Fields(text)[0]
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: nextMessageID,
		From:      &tgbotapi.User{FirstName: "Ada"},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(keyword)}},
	}}
}

func textUpdate(text string) *tgbotapi.Update {
	nextMessageID++
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: nextMessageID,
		From:      &tgbotapi.User{FirstName: "Ada"},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
	}}
}

func documentUpdate(fileName string) *tgbotapi.Update {
	nextMessageID++
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: nextMessageID,
		From:      &tgbotapi.User{FirstName: "Ada"},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Document: &tgbotapi.Document{
			FileID:   "doc-" + fileName,
			FileName: fileName,
			MimeType: "application/octet-stream",
			FileSize: 128,
		},
	}}
}

func callbackUpdate(data string, messageID int) *tgbotapi.Update {
	return &tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: testChat},
		},
	}}
}

func TestStartCommand(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)

	reply, mutated := in.HandleUpdate(context.Background(), commandUpdate("/start"))
	require.NotNil(t, reply)
	assert.True(t, mutated)
	assert.Equal(t, fs.ChatID(testChat), reply.Chat)
	assert.Contains(t, reply.Text, "Hello Ada!")
	assert.Contains(t, reply.Text, "Infinite Cloud")
}

func TestMkdirInlineArgument(t *testing.T) {
	in, trees, _ := newInterpreter(t, 10)

	reply, _ := in.HandleUpdate(context.Background(), commandUpdate("/mkdir projects"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Directory *projects* CREATED at `/projects`")

	node, err := trees.GetOrCreate(fs.ChatID(testChat)).Resolve("/projects")
	require.NoError(t, err)
	assert.True(t, node.IsDirectory())
}

func TestMkdirCollectedArgument(t *testing.T) {
	in, trees, sessions := newInterpreter(t, 10)
	ctx := context.Background()

	reply, _ := in.HandleUpdate(ctx, commandUpdate("/mkdir"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Send me the name of the new DIRECTORY")
	assert.False(t, sessions.GetOrCreate(fs.ChatID(testChat)).IsIdle())

	reply, _ = in.HandleUpdate(ctx, textUpdate("projects"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "CREATED at `/projects`")
	assert.True(t, sessions.GetOrCreate(fs.ChatID(testChat)).IsIdle())

	_, err := trees.GetOrCreate(fs.ChatID(testChat)).Resolve("/projects")
	assert.NoError(t, err)
}

func TestNewCommandAbandonsPending(t *testing.T) {
	in, _, sessions := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/mkdir"))
	assert.False(t, sessions.GetOrCreate(fs.ChatID(testChat)).IsIdle())

	reply, _ := in.HandleUpdate(ctx, commandUpdate("/help"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "SAVE FILES")
	assert.True(t, sessions.GetOrCreate(fs.ChatID(testChat)).IsIdle())
}

func TestRenameCollectedTwoArguments(t *testing.T) {
	in, trees, _ := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/cd /Documents"))
	in.HandleUpdate(ctx, documentUpdate("draft.txt"))

	reply, _ := in.HandleUpdate(ctx, commandUpdate("/rename_file"))
	assert.Contains(t, reply.Text, "PATH of the file to RENAME")

	reply, _ = in.HandleUpdate(ctx, textUpdate("draft.txt"))
	assert.Contains(t, reply.Text, "Send me the new NAME")

	reply, _ = in.HandleUpdate(ctx, textUpdate("final.txt"))
	assert.Contains(t, reply.Text, "File *draft.txt* RENAMED")
	assert.Contains(t, reply.Text, "`/Documents/final.txt`")

	tree := trees.GetOrCreate(fs.ChatID(testChat))
	_, err := tree.Resolve("/Documents/final.txt")
	assert.NoError(t, err)
	_, err = tree.Resolve("/Documents/draft.txt")
	assert.Error(t, err)
}

func TestSaveAttachmentInCurrentDirectory(t *testing.T) {
	in, trees, _ := newInterpreter(t, 10)
	ctx := context.Background()

	reply, _ := in.HandleUpdate(ctx, commandUpdate("/cd /Images"))
	assert.Contains(t, reply.Text, "`/Images`")

	reply, _ = in.HandleUpdate(ctx, documentUpdate("cat.png"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "File *cat.png* CREATED at `/Images/cat.png`")

	node, err := trees.GetOrCreate(fs.ChatID(testChat)).Resolve("/Images/cat.png")
	require.NoError(t, err)
	require.NotNil(t, node.Content)
	assert.Equal(t, "doc-cat.png", node.Content.FileID)
}

func TestSaveAttachmentCollision(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, documentUpdate("notes.txt"))
	reply, _ := in.HandleUpdate(ctx, documentUpdate("notes.txt"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "notes (1).txt")
}

func TestSaveTextMessageAsNote(t *testing.T) {
	in, trees, _ := newInterpreter(t, 10)

	reply, _ := in.HandleUpdate(context.Background(), textUpdate("shopping list"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "shopping list.txt")

	node, err := trees.GetOrCreate(fs.ChatID(testChat)).Resolve("/shopping list.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", node.Content.MimeType)
}

func TestMoveDirectoryKeepsContents(t *testing.T) {
	in, trees, _ := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/mkdir docs"))
	in.HandleUpdate(ctx, commandUpdate("/cd /docs"))
	in.HandleUpdate(ctx, documentUpdate("a.txt"))
	in.HandleUpdate(ctx, commandUpdate("/cd"))
	in.HandleUpdate(ctx, commandUpdate("/mkdir archive"))

	reply, _ := in.HandleUpdate(ctx, commandUpdate("/move_file /docs /archive/docs"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "MOVED")

	tree := trees.GetOrCreate(fs.ChatID(testChat))
	_, err := tree.Resolve("/archive/docs/a.txt")
	assert.NoError(t, err)
	_, err = tree.Resolve("/docs")
	assert.Error(t, err)
}

func TestDeleteMissingDirectoryError(t *testing.T) {
	in, _, sessions := newInterpreter(t, 10)

	reply, _ := in.HandleUpdate(context.Background(), commandUpdate("/delete_dir /nope"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "NOT FOUND")
	assert.True(t, sessions.GetOrCreate(fs.ChatID(testChat)).IsIdle())
}

func TestUnrecognizedCommand(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)

	reply, _ := in.HandleUpdate(context.Background(), commandUpdate("/frobnicate"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Unrecognized command")
}

func TestListingPaginationViaCallback(t *testing.T) {
	in, _, sessions := newInterpreter(t, 2)
	ctx := context.Background()

	// Four default directories, page size two: two pages.
	reply, _ := in.HandleUpdate(ctx, commandUpdate("/ls"))
	require.NotNil(t, reply)
	require.NotNil(t, reply.Keyboard)
	assert.Contains(t, reply.Text, "Documents")
	assert.Contains(t, reply.Text, "Images")
	assert.NotContains(t, reply.Text, "Videos")

	sess := sessions.GetOrCreate(fs.ChatID(testChat))
	require.NotEmpty(t, sess.ListToken)

	reply, mutated := in.HandleUpdate(ctx, callbackUpdate(callbackMore, 555))
	require.NotNil(t, reply)
	assert.True(t, mutated)
	assert.Equal(t, 555, reply.EditMessageID)
	assert.Equal(t, "cb-1", reply.CallbackID)
	assert.Contains(t, reply.Text, "Trash")
	assert.Contains(t, reply.Text, "Videos")
	assert.Nil(t, reply.Keyboard)
	assert.Empty(t, sess.ListToken)
}

func TestCallbackWithoutPendingListing(t *testing.T) {
	in, _, _ := newInterpreter(t, 2)

	reply, _ := in.HandleUpdate(context.Background(), callbackUpdate(callbackMore, 7))
	require.NotNil(t, reply)
	assert.Equal(t, listingExpiredText, reply.Text)
	assert.Equal(t, "cb-1", reply.CallbackID)
}

func TestCallbackAfterDirectoryDeleted(t *testing.T) {
	in, trees, sessions := newInterpreter(t, 2)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/mkdir stuff"))
	in.HandleUpdate(ctx, commandUpdate("/cd /stuff"))
	in.HandleUpdate(ctx, documentUpdate("a.txt"))
	in.HandleUpdate(ctx, documentUpdate("b.txt"))
	in.HandleUpdate(ctx, documentUpdate("c.txt"))
	in.HandleUpdate(ctx, commandUpdate("/ls"))
	sess := sessions.GetOrCreate(fs.ChatID(testChat))
	require.NotEmpty(t, sess.ListToken)

	tree := trees.GetOrCreate(fs.ChatID(testChat))
	require.NoError(t, tree.RemoveFile("/stuff/a.txt"))
	require.NoError(t, tree.RemoveFile("/stuff/b.txt"))
	require.NoError(t, tree.RemoveFile("/stuff/c.txt"))
	require.NoError(t, tree.RemoveDir("/stuff"))

	reply, _ := in.HandleUpdate(ctx, callbackUpdate(callbackMore, 8))
	require.NotNil(t, reply)
	assert.Equal(t, listingExpiredText, reply.Text)
	assert.Empty(t, sess.ListToken)
}

// buttonData flattens an inline keyboard into its callback data values.
func buttonData(kb *tgbotapi.InlineKeyboardMarkup) []string {
	if kb == nil {
		return nil
	}
	var data []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				data = append(data, *btn.CallbackData)
			}
		}
	}
	return data
}

func TestExplorerShowsEntryButtons(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)

	reply, _ := in.HandleUpdate(context.Background(), commandUpdate("/explorer"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "`/`")
	require.NotNil(t, reply.Keyboard)

	data := buttonData(reply.Keyboard)
	assert.Contains(t, data, "fs:open:Documents")
	assert.Contains(t, data, "fs:open:Trash")
	// Root has no parent and must not be deletable.
	assert.NotContains(t, data, callbackParent)
	assert.NotContains(t, data, callbackDeleteDir)
}

func TestExplorerNavigation(t *testing.T) {
	in, _, sessions := newInterpreter(t, 10)
	ctx := context.Background()
	sess := sessions.GetOrCreate(fs.ChatID(testChat))

	in.HandleUpdate(ctx, commandUpdate("/explorer"))

	reply, mutated := in.HandleUpdate(ctx, callbackUpdate("fs:open:Documents", 42))
	require.NotNil(t, reply)
	assert.True(t, mutated)
	assert.Equal(t, 42, reply.EditMessageID)
	assert.Contains(t, reply.Text, "`/Documents`")
	assert.Equal(t, "/Documents", sess.CurrentPath)

	data := buttonData(reply.Keyboard)
	assert.Contains(t, data, callbackParent)
	assert.Contains(t, data, callbackDeleteDir)

	reply, _ = in.HandleUpdate(ctx, callbackUpdate(callbackParent, 42))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "`/`")
	assert.Equal(t, fs.RootPath, sess.CurrentPath)
}

func TestExplorerFileReference(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/cd /Images"))
	in.HandleUpdate(ctx, documentUpdate("cat.png"))
	in.HandleUpdate(ctx, commandUpdate("/explorer"))

	reply, _ := in.HandleUpdate(ctx, callbackUpdate("fs:open:cat.png", 43))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "File: *cat.png*")
	assert.Contains(t, reply.Text, "`/Images/cat.png`")
	assert.Equal(t, []string{callbackBack}, buttonData(reply.Keyboard))

	reply, _ = in.HandleUpdate(ctx, callbackUpdate(callbackBack, 43))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "`/Images`")
	assert.Contains(t, buttonData(reply.Keyboard), "fs:open:cat.png")
}

func TestExplorerDeleteEmptyDirectory(t *testing.T) {
	in, trees, sessions := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/mkdir scratch"))
	in.HandleUpdate(ctx, commandUpdate("/cd /scratch"))
	in.HandleUpdate(ctx, commandUpdate("/explorer"))

	reply, mutated := in.HandleUpdate(ctx, callbackUpdate(callbackDeleteDir, 44))
	require.NotNil(t, reply)
	assert.True(t, mutated)
	assert.Contains(t, reply.Text, "Directory `/scratch` DELETED")
	assert.Contains(t, reply.Text, "`/`")
	assert.Equal(t, fs.RootPath, sessions.GetOrCreate(fs.ChatID(testChat)).CurrentPath)

	_, err := trees.GetOrCreate(fs.ChatID(testChat)).Resolve("/scratch")
	assert.Error(t, err)
}

func TestExplorerDeleteNonEmptyDirectoryRefused(t *testing.T) {
	in, trees, _ := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/cd /Documents"))
	in.HandleUpdate(ctx, documentUpdate("keep.txt"))
	in.HandleUpdate(ctx, commandUpdate("/explorer"))

	reply, _ := in.HandleUpdate(ctx, callbackUpdate(callbackDeleteDir, 45))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "INVALID OPERATION")
	assert.Equal(t, []string{callbackBack}, buttonData(reply.Keyboard))

	_, err := trees.GetOrCreate(fs.ChatID(testChat)).Resolve("/Documents/keep.txt")
	assert.NoError(t, err)
}

func TestExplorerOpenMissingEntry(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)

	reply, _ := in.HandleUpdate(context.Background(), callbackUpdate("fs:open:ghost", 46))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "NOT FOUND")
	assert.Equal(t, []string{callbackBack}, buttonData(reply.Keyboard))
}

func TestExplorerSkipsOverlongEntryButton(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)
	ctx := context.Background()

	long := strings.Repeat("x", 80)
	in.HandleUpdate(ctx, commandUpdate("/mkdir "+long))

	reply, _ := in.HandleUpdate(ctx, commandUpdate("/explorer"))
	require.NotNil(t, reply)
	assert.NotContains(t, buttonData(reply.Keyboard), callbackOpenPrefix+long)
	assert.Contains(t, buttonData(reply.Keyboard), "fs:open:Documents")
}

func TestEmptyDirectoryListing(t *testing.T) {
	in, _, _ := newInterpreter(t, 10)
	ctx := context.Background()

	in.HandleUpdate(ctx, commandUpdate("/mkdir empty"))
	reply, _ := in.HandleUpdate(ctx, commandUpdate("/ls /empty"))
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "(empty directory)")
	assert.Nil(t, reply.Keyboard)
}
