// Package chats mirrors backend chats and their messages. The task
// store leans on the chat cache to resolve a task's execution chat.
package chats

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type Role string

const (
	RoleSystem    Role = "System"
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
	RoleTool      Role = "Tool"
)

type MessageStatus string

const (
	MessageWriting            MessageStatus = "Writing"
	MessageWaitingForToolCall MessageStatus = "WaitingForToolCall"
	MessageCompleted          MessageStatus = "Completed"
)

type Chat struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	IsPinned      bool      `json:"is_pinned"`
	AgentsIDs     []int64   `json:"agents_ids"`
	ModelFullName *string   `json:"model_full_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Message struct {
	ID               int64         `json:"id"`
	ChatID           int64         `json:"chat_id"`
	AgentID          *int64        `json:"agent_id"`
	Status           MessageStatus `json:"status"`
	Role             Role          `json:"role"`
	Content          string        `json:"content"`
	PromptTokens     *int64        `json:"prompt_tokens"`
	CompletionTokens *int64        `json:"completion_tokens"`
	ToolCalls        *string       `json:"tool_calls"`
	ToolCallID       *string       `json:"tool_call_id"`
	CreatedAt        time.Time     `json:"created_at"`
}

type CreateChat struct {
	AgentID int64 `json:"agent_id"`
}

type CreateMessage struct {
	ChatID  int64  `json:"chat_id"`
	Content string `json:"text"`
}

type ChatsList struct {
	Chats []Chat `json:"chats"`
}

type MessagesList struct {
	Messages []Message `json:"messages"`
}

// Push topics for chat messages.
const (
	TopicMessageCreated = "messages:created"
	TopicMessageUpdated = "messages:updated"
)

type invoker interface {
	Invoke(ctx context.Context, method string, params, out any) error
}

type Repository struct {
	bridge invoker
}

func NewRepository(bridge invoker) *Repository {
	return &Repository{bridge: bridge}
}

func (r *Repository) List(ctx context.Context) ([]Chat, error) {
	var list ChatsList
	if err := r.bridge.Invoke(ctx, "list_chats", nil, &list); err != nil {
		return nil, err
	}
	return list.Chats, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Chat, error) {
	var chat Chat
	err := r.bridge.Invoke(ctx, "get_chat", map[string]any{"id": id}, &chat)
	return chat, err
}

func (r *Repository) Create(ctx context.Context, req CreateChat) (Chat, error) {
	var chat Chat
	err := r.bridge.Invoke(ctx, "create_chat", map[string]any{"request": req}, &chat)
	return chat, err
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return r.bridge.Invoke(ctx, "delete_chat", map[string]any{"id": id}, nil)
}

func (r *Repository) TogglePinned(ctx context.Context, id int64) error {
	return r.bridge.Invoke(ctx, "toggle_chat_is_pinned", map[string]any{"id": id}, nil)
}

func (r *Repository) UpdateTitle(ctx context.Context, id int64, title string) error {
	return r.bridge.Invoke(ctx, "update_chat_title", map[string]any{"id": id, "title": title}, nil)
}

func (r *Repository) UpdateModelFullName(ctx context.Context, id int64, modelFullName string) error {
	return r.bridge.Invoke(ctx, "update_chat_model_full_name", map[string]any{"id": id, "modelFullName": modelFullName}, nil)
}

type listMessagesRequest struct {
	ChatID int64 `json:"chat_id"`
}

func (r *Repository) ListMessages(ctx context.Context, chatID int64) ([]Message, error) {
	var list MessagesList
	err := r.bridge.Invoke(ctx, "list_messages", map[string]any{"request": listMessagesRequest{ChatID: chatID}}, &list)
	if err != nil {
		return nil, err
	}
	return list.Messages, nil
}

func (r *Repository) CreateMessage(ctx context.Context, req CreateMessage) (Message, error) {
	var msg Message
	err := r.bridge.Invoke(ctx, "create_message", map[string]any{"request": req}, &msg)
	return msg, err
}

func (r *Repository) ApproveToolCall(ctx context.Context, messageID int64) error {
	return r.bridge.Invoke(ctx, "approve_tool_call", map[string]any{"messageId": messageID}, nil)
}

func (r *Repository) DenyToolCall(ctx context.Context, messageID int64) error {
	return r.bridge.Invoke(ctx, "deny_tool_call", map[string]any{"messageId": messageID}, nil)
}

// EventSource is the push side of the bridge gateway.
type EventSource interface {
	Listen(topic string) (<-chan json.RawMessage, func())
}

// Store caches chats and per-chat message lists. It satisfies the task
// store's ChatLookup so pushed tasks can pull unseen execution chats in.
type Store struct {
	repo *Repository

	mu       sync.Mutex
	chats    []Chat
	messages map[int64][]Message
}

func NewStore(repo *Repository) *Store {
	return &Store{
		repo:     repo,
		messages: make(map[int64][]Message),
	}
}

func (s *Store) Refresh(ctx context.Context) error {
	chats, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.chats = chats
	s.mu.Unlock()
	return nil
}

// Known reports whether the chat id is already cached.
func (s *Store) Known(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) GetByID(id int64) (Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.ID == id {
			return c, true
		}
	}
	return Chat{}, false
}

func (s *Store) All() []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

func (s *Store) Create(ctx context.Context, req CreateChat) (Chat, error) {
	chat, err := s.repo.Create(ctx, req)
	if err != nil {
		return Chat{}, err
	}
	s.mu.Lock()
	s.chats = append([]Chat{chat}, s.chats...)
	s.mu.Unlock()
	return chat, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.chats {
		if s.chats[i].ID == id {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			break
		}
	}
	delete(s.messages, id)
	s.mu.Unlock()
	return nil
}

// LoadMessages fetches and caches a chat's message history.
func (s *Store) LoadMessages(ctx context.Context, chatID int64) ([]Message, error) {
	messages, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.messages[chatID] = messages
	s.mu.Unlock()
	return messages, nil
}

func (s *Store) Messages(chatID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached := s.messages[chatID]
	out := make([]Message, len(cached))
	copy(out, cached)
	return out
}

// AttachPush folds message push events into the cached histories.
func (s *Store) AttachPush(ctx context.Context, src EventSource) func() {
	created, offCreated := src.Listen(TopicMessageCreated)
	updated, offUpdated := src.Listen(TopicMessageUpdated)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.consume(ctx, created)
	}()
	go func() {
		defer wg.Done()
		s.consume(ctx, updated)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			offCreated()
			offUpdated()
			wg.Wait()
		})
	}
}

func (s *Store) consume(ctx context.Context, events <-chan json.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			s.applyMessage(payload)
		}
	}
}

func (s *Store) applyMessage(payload json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil || msg.ID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.messages[msg.ChatID]
	if !ok {
		// History never loaded; nothing to reconcile against.
		return
	}
	for i := range history {
		if history[i].ID == msg.ID {
			history[i] = msg
			return
		}
	}
	s.messages[msg.ChatID] = append(history, msg)
}
