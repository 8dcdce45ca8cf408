// Package telegram wraps the Telegram Bot API: sending replies back into
// conversations and fetching byte ranges of content the platform stores.
// Both are fallible remote calls; transient failures are retried a bounded
// number of times with backoff.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/logging"
	"github.com/infinitecloud/infinitecloud/internal/metrics"
)

// Remote call error classes.
var (
	ErrRemoteTimeout     = errors.New("telegram: request timed out")
	ErrRemoteUnavailable = errors.New("telegram: service unavailable")
)

const (
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	requestTimeout = 30 * time.Second
)

// Client is the outbound Telegram Bot API client.
type Client struct {
	api          *tgbotapi.BotAPI
	httpClient   *http.Client
	token        string
	fileEndpoint string // printf template: token, file path
}

// New creates a Client. apiURL overrides the Bot API base URL (used by
// tests against a mock server); empty means api.telegram.org.
func New(token, apiURL string) (*Client, error) {
	httpClient := &http.Client{Timeout: requestTimeout}

	apiEndpoint := tgbotapi.APIEndpoint
	fileEndpoint := tgbotapi.FileEndpoint
	if apiURL != "" {
		base := strings.TrimRight(apiURL, "/")
		apiEndpoint = base + "/bot%s/%s"
		fileEndpoint = base + "/file/bot%s/%s"
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect bot API: %w", err)
	}
	logging.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Client{
		api:          api,
		httpClient:   httpClient,
		token:        token,
		fileEndpoint: fileEndpoint,
	}, nil
}

// SendMessage sends a Markdown-formatted text reply, optionally with an
// inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chat fs.ChatID, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(int64(chat), text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	return c.request(ctx, "sendMessage", msg)
}

// ReplyToMessage sends a text reply quoting an earlier message, which makes
// Telegram surface the original content to the user.
func (c *Client) ReplyToMessage(ctx context.Context, chat fs.ChatID, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(int64(chat), text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = replyTo
	return c.request(ctx, "sendMessage", msg)
}

// EditMessageText edits a previously sent message in place, optionally
// replacing its inline keyboard.
func (c *Client) EditMessageText(ctx context.Context, chat fs.ChatID, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	var edit tgbotapi.EditMessageTextConfig
	if keyboard != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(int64(chat), messageID, text, *keyboard)
	} else {
		edit = tgbotapi.NewEditMessageText(int64(chat), messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeMarkdown
	return c.request(ctx, "editMessageText", edit)
}

// AnswerCallback acknowledges a callback query so the client stops showing
// a progress spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, ""))
}

// request performs one Bot API call with bounded retries and backoff for
// transient failures.
func (c *Client) request(ctx context.Context, method string, chattable tgbotapi.Chattable) error {
	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrRemoteTimeout, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		start := time.Now()
		_, err := c.api.Request(chattable)
		metrics.RecordTelegramCall(method, time.Since(start), err == nil)
		if err == nil {
			return nil
		}
		lastErr = classify(err)
		if !errors.Is(lastErr, ErrRemoteTimeout) {
			break
		}
		logging.Warn("telegram call failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}

// FetchRange downloads one byte range of the content behind ptr: getFile to
// resolve the current download path, then a ranged HTTP GET. length <= 0
// fetches to the end of the file.
func (c *Client) FetchRange(ctx context.Context, ptr fs.ContentPointer, offset, length int64) ([]byte, error) {
	if ptr.FileID == "" {
		return nil, fmt.Errorf("%w: content has no file id", ErrRemoteUnavailable)
	}

	start := time.Now()
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: ptr.FileID})
	metrics.RecordTelegramCall("getFile", time.Since(start), err == nil)
	if err != nil {
		return nil, classify(err)
	}

	url := fmt.Sprintf(c.fileEndpoint, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if length > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	} else if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	start = time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordTelegramCall("downloadFile", time.Since(start), err == nil)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	default:
		return nil, fmt.Errorf("%w: file download status %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	// The platform may ignore Range and send the whole file; never read
	// past the requested window.
	reader := io.Reader(resp.Body)
	if resp.StatusCode == http.StatusOK && offset > 0 {
		if _, err := io.CopyN(io.Discard, reader, offset); err != nil {
			return nil, classify(err)
		}
	}
	if length > 0 {
		reader = io.LimitReader(reader, length)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// classify maps transport errors onto the remote-call taxonomy.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}
