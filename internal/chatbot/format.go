package chatbot

import (
	"fmt"
	"strings"
	"time"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

var statusIcon = map[string]string{
	common.StatusPending:   "⏳",
	common.StatusInReview:  "👀",
	common.StatusApproved:  "✅",
	common.StatusRejected:  "❌",
	common.StatusCompleted: "✔️",
	common.StatusCancelled: "🚫",
	common.StatusOnHold:    "⏸️",
}

func icon(status string) string {
	if i, ok := statusIcon[status]; ok {
		return i
	}
	return "📋"
}

func formatOffice(o refdata.Office) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📍 %s\n\n", o.OfficeName)
	if o.BuildingName != "" {
		fmt.Fprintf(&sb, "Building: %s\n", o.BuildingName)
	}
	if o.FloorRoom != "" {
		fmt.Fprintf(&sb, "Location: %s\n", o.FloorRoom)
	}
	if o.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", o.Description)
	}
	sb.WriteString("\nIs there anything else I can help you with?")
	return sb.String()
}

func formatTicket(t *common.Ticket) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's the status of your ticket:\n\n%s Ticket #%s\n", icon(t.Status), t.TicketNumber)
	fmt.Fprintf(&sb, "Title: %s\nStatus: %s\nPriority: %s\nCategory: %s\n", t.Title, t.Status, t.Priority, t.Category)
	fmt.Fprintf(&sb, "Created: %s\n", time.UnixMilli(t.CreatedAt).UTC().Format("Jan 2, 2006"))
	if t.AssignedOffice != nil {
		fmt.Fprintf(&sb, "Office: %s\n", t.AssignedOffice.OfficeName)
	}
	if t.QueueNumber != nil {
		fmt.Fprintf(&sb, "Queue position: #%d\n", *t.QueueNumber)
	}
	sb.WriteString("\nYou can view the full details in the Tickets section.")
	return sb.String()
}

func formatTicketList(ts []*common.Ticket, total int) string {
	var sb strings.Builder
	plural := "s"
	if total == 1 {
		plural = ""
	}
	fmt.Fprintf(&sb, "I found %d ticket%s in your account:\n\n", total, plural)
	for i, t := range ts {
		fmt.Fprintf(&sb, "%d. %s #%s - %s\n   Status: %s | Priority: %s | %s",
			i+1, icon(t.Status), t.TicketNumber, t.Title, t.Status, t.Priority,
			time.UnixMilli(t.CreatedAt).UTC().Format("Jan 2"))
		if t.QueueNumber != nil {
			fmt.Fprintf(&sb, " | Queue #%d", *t.QueueNumber)
		}
		sb.WriteString("\n")
	}
	if total > len(ts) {
		fmt.Fprintf(&sb, "\n(Showing the %d most recent. See the Tickets section for all of them.)\n", len(ts))
	}
	sb.WriteString("\nMention a ticket number to see more about it.")
	return sb.String()
}
