package ledger

import (
	"context"

	"github.com/aretw0/tabkeeper/pkg/domain"
)

// UpdateConversation runs fn on the conversation sub-document under the
// session lock and persists the result. The payment version is untouched.
func (l *Ledger) UpdateConversation(ctx context.Context, sessionID string, fn func(c *domain.ConversationState) error) (*domain.ConversationState, error) {
	doc, err := l.sessions.Update(ctx, sessionID, func(doc *domain.Session) error {
		return fn(doc.Conversation)
	})
	l.observe(OpConversation, sessionID, err)
	if err != nil {
		return nil, err
	}
	return doc.Conversation, nil
}
