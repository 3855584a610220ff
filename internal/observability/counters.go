package observability

import (
	"fmt"
	"sync/atomic"
)

var (
	TicketCreated       atomic.Int64
	TicketQueued        atomic.Int64
	TicketUnrouted      atomic.Int64
	TicketStatusChanged atomic.Int64
	TicketClosed        atomic.Int64
	TicketCommented     atomic.Int64
	QueueRenumbered     atomic.Int64
	QueueReordered      atomic.Int64
	QueueDequeued       atomic.Int64
	ChatMessages        atomic.Int64
	ChatLLMFallbacks    atomic.Int64
	FAQSearchRequests   atomic.Int64
	FAQSearchHits       atomic.Int64
	AIEmbeddingCalls    atomic.Int64
)

// Snapshot returns a simple Prometheus-like exposition text of the domain counters.
func Snapshot() string {
	return fmt.Sprintf(`# CampusDesk domain metrics
campusdesk_ticket_created_total %d
campusdesk_ticket_queued_total %d
campusdesk_ticket_unrouted_total %d
campusdesk_ticket_status_changed_total %d
campusdesk_ticket_closed_total %d
campusdesk_ticket_commented_total %d
campusdesk_queue_renumbered_total %d
campusdesk_queue_reordered_total %d
campusdesk_queue_dequeued_total %d
campusdesk_chat_messages_total %d
campusdesk_chat_llm_fallbacks_total %d
campusdesk_faq_search_requests_total %d
campusdesk_faq_search_hits_total %d
campusdesk_ai_embedding_calls_total %d
`,
		TicketCreated.Load(),
		TicketQueued.Load(),
		TicketUnrouted.Load(),
		TicketStatusChanged.Load(),
		TicketClosed.Load(),
		TicketCommented.Load(),
		QueueRenumbered.Load(),
		QueueReordered.Load(),
		QueueDequeued.Load(),
		ChatMessages.Load(),
		ChatLLMFallbacks.Load(),
		FAQSearchRequests.Load(),
		FAQSearchHits.Load(),
		AIEmbeddingCalls.Load(),
	)
}
