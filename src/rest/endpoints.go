package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"personal/discord_client/src/entity"
	"personal/discord_client/src/snowflake"
)

// call runs a request and turns non-2xx outcomes into errors. The raw body is
// returned on success.
func (c *Client) call(ctx context.Context, method, path string, opts *RequestOptions) (json.RawMessage, error) {
	resp, err := c.Request(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	if resp.RateLimited {
		return nil, &RateLimitError{Bucket: resp.Bucket, RetryAfter: resp.RetryAfter, Local: true}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Bucket: resp.Bucket, RetryAfter: resp.RetryAfter}
	}
	if !resp.OK() {
		return nil, newAPIError(method, path, resp.StatusCode, resp.Body)
	}
	return resp.Body, nil
}

func (c *Client) GetGateway(ctx context.Context) (*entity.Gateway, error) {
	body, err := c.call(ctx, http.MethodGet, "/gateway", nil)
	if err != nil {
		return nil, err
	}
	var g entity.Gateway
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, &entity.DecodeError{Kind: "gateway", Err: err}
	}
	return &g, nil
}

// GetBotGateway returns the gateway URL along with the session start quota.
func (c *Client) GetBotGateway(ctx context.Context) (*entity.GatewayBot, error) {
	body, err := c.call(ctx, http.MethodGet, "/gateway/bot", nil)
	if err != nil {
		return nil, err
	}
	return entity.DecodeGatewayBot(body)
}

func (c *Client) GetCurrentUser(ctx context.Context) (*entity.User, error) {
	return c.getUser(ctx, "/users/@me")
}

func (c *Client) GetUser(ctx context.Context, id snowflake.Snowflake) (*entity.User, error) {
	return c.getUser(ctx, "/users/"+id.String())
}

func (c *Client) getUser(ctx context.Context, path string) (*entity.User, error) {
	body, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return entity.DecodeUser(body)
}

type ModifyCurrentUserParams struct {
	Username *string `json:"username,omitempty"`
	// Avatar is a data URI.
	Avatar *string `json:"avatar,omitempty"`
}

func (c *Client) ModifyCurrentUser(ctx context.Context, params ModifyCurrentUserParams) (*entity.User, error) {
	body, err := c.call(ctx, http.MethodPatch, "/users/@me", &RequestOptions{Body: params})
	if err != nil {
		return nil, err
	}
	return entity.DecodeUser(body)
}

func (c *Client) CreateDM(ctx context.Context, recipientID snowflake.Snowflake) (*entity.Channel, error) {
	body, err := c.call(ctx, http.MethodPost, "/users/@me/channels", &RequestOptions{
		Body: map[string]snowflake.Snowflake{"recipient_id": recipientID},
	})
	if err != nil {
		return nil, err
	}
	return entity.DecodeChannel(body, c.resolver)
}

func (c *Client) LeaveGuild(ctx context.Context, guildID snowflake.Snowflake) error {
	_, err := c.call(ctx, http.MethodDelete, "/users/@me/guilds/"+guildID.String(), nil)
	return err
}

func (c *Client) GetChannel(ctx context.Context, channelID snowflake.Snowflake) (*entity.Channel, error) {
	body, err := c.call(ctx, http.MethodGet, channelPath(channelID), nil)
	if err != nil {
		return nil, err
	}
	return entity.DecodeChannel(body, c.resolver)
}

func (c *Client) DeleteChannel(ctx context.Context, channelID snowflake.Snowflake, reason string) (*entity.Channel, error) {
	body, err := c.call(ctx, http.MethodDelete, channelPath(channelID), &RequestOptions{Reason: reason})
	if err != nil {
		return nil, err
	}
	return entity.DecodeChannel(body, c.resolver)
}

func (c *Client) TriggerTyping(ctx context.Context, channelID snowflake.Snowflake) error {
	_, err := c.call(ctx, http.MethodPost, channelPath(channelID)+"/typing", nil)
	return err
}

// GetMessagesParams selects a page of channel history. At most one of Around,
// Before and After should be set.
type GetMessagesParams struct {
	Around snowflake.Snowflake
	Before snowflake.Snowflake
	After  snowflake.Snowflake
	Limit  int
}

func (p GetMessagesParams) query() url.Values {
	q := url.Values{}
	switch {
	case !p.Around.IsZero():
		q.Set("around", p.Around.String())
	case !p.Before.IsZero():
		q.Set("before", p.Before.String())
	case !p.After.IsZero():
		q.Set("after", p.After.String())
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

func (c *Client) GetMessages(ctx context.Context, channelID snowflake.Snowflake, params GetMessagesParams) ([]*entity.Message, error) {
	body, err := c.call(ctx, http.MethodGet, channelPath(channelID)+"/messages", &RequestOptions{Query: params.query()})
	if err != nil {
		return nil, err
	}
	return c.decodeMessages(body)
}

func (c *Client) GetMessage(ctx context.Context, channelID, messageID snowflake.Snowflake) (*entity.Message, error) {
	body, err := c.call(ctx, http.MethodGet, messagePath(channelID, messageID), nil)
	if err != nil {
		return nil, err
	}
	return entity.DecodeMessage(body, c.resolver)
}

type MessageReference struct {
	MessageID       snowflake.Snowflake `json:"message_id"`
	ChannelID       snowflake.Snowflake `json:"channel_id,omitempty"`
	GuildID         snowflake.Snowflake `json:"guild_id,omitempty"`
	FailIfNotExists *bool               `json:"fail_if_not_exists,omitempty"`
}

type AllowedMentions struct {
	Parse       []string              `json:"parse"`
	Users       []snowflake.Snowflake `json:"users,omitempty"`
	Roles       []snowflake.Snowflake `json:"roles,omitempty"`
	RepliedUser bool                  `json:"replied_user,omitempty"`
}

type MessageParams struct {
	Content          string            `json:"content,omitempty"`
	TTS              bool              `json:"tts,omitempty"`
	Nonce            string            `json:"nonce,omitempty"`
	Flags            int               `json:"flags,omitempty"`
	AllowedMentions  *AllowedMentions  `json:"allowed_mentions,omitempty"`
	MessageReference *MessageReference `json:"message_reference,omitempty"`
}

func (c *Client) CreateMessage(ctx context.Context, channelID snowflake.Snowflake, params MessageParams) (*entity.Message, error) {
	body, err := c.call(ctx, http.MethodPost, channelPath(channelID)+"/messages", &RequestOptions{Body: params})
	if err != nil {
		return nil, err
	}
	return entity.DecodeMessage(body, c.resolver)
}

type EditMessageParams struct {
	Content         *string          `json:"content,omitempty"`
	Flags           *int             `json:"flags,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID snowflake.Snowflake, params EditMessageParams) (*entity.Message, error) {
	body, err := c.call(ctx, http.MethodPatch, messagePath(channelID, messageID), &RequestOptions{Body: params})
	if err != nil {
		return nil, err
	}
	return entity.DecodeMessage(body, c.resolver)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID snowflake.Snowflake, reason string) error {
	_, err := c.call(ctx, http.MethodDelete, messagePath(channelID, messageID), &RequestOptions{Reason: reason})
	return err
}

// BulkDeleteMessages deletes between 2 and 100 messages in one call.
func (c *Client) BulkDeleteMessages(ctx context.Context, channelID snowflake.Snowflake, messageIDs []snowflake.Snowflake, reason string) error {
	if len(messageIDs) < 2 || len(messageIDs) > 100 {
		return fmt.Errorf("bulk delete takes 2 to 100 messages, got %d", len(messageIDs))
	}
	_, err := c.call(ctx, http.MethodPost, channelPath(channelID)+"/messages/bulk-delete", &RequestOptions{
		Body:   map[string][]snowflake.Snowflake{"messages": messageIDs},
		Reason: reason,
	})
	return err
}

func (c *Client) CrosspostMessage(ctx context.Context, channelID, messageID snowflake.Snowflake) (*entity.Message, error) {
	body, err := c.call(ctx, http.MethodPost, messagePath(channelID, messageID)+"/crosspost", nil)
	if err != nil {
		return nil, err
	}
	return entity.DecodeMessage(body, c.resolver)
}

// Reaction endpoints take the emoji as unicode text or "name:id" (see entity.Emoji.APIName).

func (c *Client) CreateReaction(ctx context.Context, channelID, messageID snowflake.Snowflake, emoji string) error {
	_, err := c.call(ctx, http.MethodPut, reactionPath(channelID, messageID, emoji)+"/@me", nil)
	return err
}

func (c *Client) DeleteOwnReaction(ctx context.Context, channelID, messageID snowflake.Snowflake, emoji string) error {
	_, err := c.call(ctx, http.MethodDelete, reactionPath(channelID, messageID, emoji)+"/@me", nil)
	return err
}

func (c *Client) DeleteUserReaction(ctx context.Context, channelID, messageID snowflake.Snowflake, emoji string, userID snowflake.Snowflake) error {
	_, err := c.call(ctx, http.MethodDelete, reactionPath(channelID, messageID, emoji)+"/"+userID.String(), nil)
	return err
}

func (c *Client) DeleteAllReactions(ctx context.Context, channelID, messageID snowflake.Snowflake) error {
	_, err := c.call(ctx, http.MethodDelete, messagePath(channelID, messageID)+"/reactions", nil)
	return err
}

func (c *Client) GetReactions(ctx context.Context, channelID, messageID snowflake.Snowflake, emoji string, after snowflake.Snowflake, limit int) ([]*entity.User, error) {
	q := url.Values{}
	if !after.IsZero() {
		q.Set("after", after.String())
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.call(ctx, http.MethodGet, reactionPath(channelID, messageID, emoji), &RequestOptions{Query: q})
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &entity.DecodeError{Kind: "user list", Err: err}
	}
	users := make([]*entity.User, 0, len(raws))
	for _, raw := range raws {
		var u *entity.User
		if c.resolver != nil {
			u, err = c.resolver.UpsertUser(raw)
		} else {
			u, err = entity.DecodeUser(raw)
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (c *Client) GetPinnedMessages(ctx context.Context, channelID snowflake.Snowflake) ([]*entity.Message, error) {
	body, err := c.call(ctx, http.MethodGet, channelPath(channelID)+"/pins", nil)
	if err != nil {
		return nil, err
	}
	return c.decodeMessages(body)
}

func (c *Client) PinMessage(ctx context.Context, channelID, messageID snowflake.Snowflake, reason string) error {
	_, err := c.call(ctx, http.MethodPut, channelPath(channelID)+"/pins/"+messageID.String(), &RequestOptions{Reason: reason})
	return err
}

func (c *Client) UnpinMessage(ctx context.Context, channelID, messageID snowflake.Snowflake, reason string) error {
	_, err := c.call(ctx, http.MethodDelete, channelPath(channelID)+"/pins/"+messageID.String(), &RequestOptions{Reason: reason})
	return err
}

func (c *Client) decodeMessages(body json.RawMessage) ([]*entity.Message, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &entity.DecodeError{Kind: "message list", Err: err}
	}
	messages := make([]*entity.Message, 0, len(raws))
	for _, raw := range raws {
		m, err := entity.DecodeMessage(raw, c.resolver)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func channelPath(channelID snowflake.Snowflake) string {
	return "/channels/" + channelID.String()
}

func messagePath(channelID, messageID snowflake.Snowflake) string {
	return channelPath(channelID) + "/messages/" + messageID.String()
}

func reactionPath(channelID, messageID snowflake.Snowflake, emoji string) string {
	return messagePath(channelID, messageID) + "/reactions/" + url.PathEscape(emoji)
}
