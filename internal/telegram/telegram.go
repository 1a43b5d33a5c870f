// Package telegram is a minimal Telegram Bot API client: just the calls the
// webhook flow needs, plus the update types Telegram posts to the webhook.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Bot commands the bot registers and reacts to.
const (
	CommandStart   = "/start"
	CommandNewChat = "/new_chat"
)

// Update is the webhook payload.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Date      int64       `json:"date"`
	Photo     []PhotoSize `json:"photo,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type Client struct {
	apiBase    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for the given bot token. apiBase overrides the
// production endpoint, mainly for tests.
func NewClient(token, apiBase string) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		apiBase:    apiBase,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendMessage posts a text message and returns the sent message, whose id is
// needed to edit it later.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	var sent Message
	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &sent)
	if err != nil {
		return nil, err
	}
	return &sent, nil
}

// EditMessageText replaces the text of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

// SetMyCommands registers the bot's command list with Telegram.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.call(ctx, "setMyCommands", map[string]any{
		"commands": commands,
	}, nil)
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// DownloadFile fetches the raw bytes of a file the bot received, resolving
// the file path through getFile first.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var info fileInfo
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &info); err != nil {
		return nil, err
	}
	if info.FilePath == "" {
		return nil, fmt.Errorf("telegram: getFile returned no file_path for %s", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, info.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: file download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: file download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// LargestPhoto picks the highest-resolution size of a photo message.
func LargestPhoto(sizes []PhotoSize) *PhotoSize {
	if len(sizes) == 0 {
		return nil
	}
	best := &sizes[0]
	for i := 1; i < len(sizes); i++ {
		if sizes[i].Width*sizes[i].Height > best.Width*best.Height {
			best = &sizes[i]
		}
	}
	return best
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any, result any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("telegram: %s: decode response: %w", method, err)
	}
	if !decoded.OK {
		return fmt.Errorf("telegram: %s: %s", method, decoded.Description)
	}
	if result != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, err)
		}
	}
	return nil
}
