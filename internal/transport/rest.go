package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ReilBleem13/ChatSync/internal/domain"
	"github.com/sethvargo/go-retry"
)

const retryBackoff = 500 * time.Millisecond

type RestClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint64
}

func NewRestClient(baseURL, token string, timeout time.Duration, maxRetries uint64) *RestClient {
	return &RestClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

var _ API = (*RestClient)(nil)

func (c *RestClient) Rooms(ctx context.Context, page, size int) ([]domain.Room, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	var rooms []domain.Room
	if err := c.do(ctx, http.MethodGet, "/rooms?"+query.Encode(), nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *RestClient) MessagePage(ctx context.Context, roomID int64, cur Cursor) ([]domain.Message, error) {
	query := url.Values{}
	switch {
	case cur.BeforeID != 0:
		query.Set("before_id", strconv.FormatInt(cur.BeforeID, 10))
		query.Set("size", strconv.Itoa(cur.Size))
	case cur.AfterID != 0:
		query.Set("after_id", strconv.FormatInt(cur.AfterID, 10))
		query.Set("size", strconv.Itoa(cur.Size))
	default:
		query.Set("page", strconv.Itoa(cur.Page))
		query.Set("size", strconv.Itoa(cur.Size))
	}

	var messages []domain.Message
	path := fmt.Sprintf("/rooms/%d/messages?%s", roomID, query.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *RestClient) Send(ctx context.Context, in SendRequest) (domain.Message, error) {
	body := sendMessageBody{
		Content:   in.Content,
		Type:      in.Type,
		ReplyToID: in.ReplyToID,
		FileName:  in.FileName,
		FileSize:  in.FileSize,
	}

	var msg domain.Message
	path := fmt.Sprintf("/rooms/%d/messages", in.RoomID)
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (c *RestClient) Delete(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), nil, nil)
}

func (c *RestClient) CreateRoom(ctx context.Context, in CreateRoomRequest) (domain.Room, error) {
	body := createRoomBody{
		Name:      in.Name,
		Kind:      in.Kind,
		IsPrivate: in.IsPrivate,
		MemberIDs: in.MemberIDs,
	}

	var room domain.Room
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (c *RestClient) Join(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%d/join", roomID), nil, nil)
}

func (c *RestClient) Leave(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%d/leave", roomID), nil, nil)
}

func (c *RestClient) AddMember(ctx context.Context, roomID, userID int64, role domain.MemberRole) error {
	body := addMemberBody{UserID: userID, Role: role}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%d/members", roomID), body, nil)
}

func (c *RestClient) RemoveMember(ctx context.Context, roomID, userID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/rooms/%d/members/%d", roomID, userID), nil, nil)
}

func (c *RestClient) OnlineUsers(ctx context.Context) ([]domain.PresenceSnapshot, error) {
	var snapshots []domain.PresenceSnapshot
	if err := c.do(ctx, http.MethodGet, "/presence/online", nil, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (c *RestClient) Typing(ctx context.Context, roomID int64, isTyping bool) error {
	body := typingBody{IsTyping: isTyping}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%d/typing", roomID), body, nil)
}

// do runs one request with bounded retry. Only transport-class
// failures (network errors, 5xx) are retried; everything else stops
// immediately.
func (c *RestClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewConstant(retryBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.once(ctx, method, path, payload, out)
		if err != nil && isTransport(err) {
			slog.Debug("Retrying transport failure", "method", method, "path", path, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *RestClient) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s response: %v", domain.ErrTransport, method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body errorBody
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		message = body.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrInvalidToken.WithMessage(message)
	case resp.StatusCode == http.StatusForbidden:
		return domain.ErrForbidden.WithMessage(message)
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound.WithMessage(message)
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrConflict.WithMessage(message)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.ErrValidation.WithMessage(message)
	case resp.StatusCode >= 500:
		return domain.ErrTransport.WithMessage(message)
	default:
		return domain.ErrInternal.WithMessage(message)
	}
}

func isTransport(err error) bool {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == domain.ErrTransport.Code
	}
	return false
}
