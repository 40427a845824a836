package seeds

import (
	"context"
	"log"

	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/services"
)

const DemoProjectRef = "demo-rebrand"

// SeedConversations opens the demo project conversation and a direct
// thread, each with a short history. Running it again reuses both
// conversations and only adds messages to ones that are still empty.
func SeedConversations(ctx context.Context, m *services.Messaging) error {
	log.Println("💬 Seeding conversations...")

	pm := models.Employee(DemoEmployees[0].ID)
	designer := models.Employee(DemoEmployees[1].ID)
	client := models.Client(DemoClients[0].ID)

	project, _, err := m.Directory.CreateProjectConversation(ctx, services.ProjectSeed{
		ProjectRef: DemoProjectRef,
		Name:       "Acme Bakery rebrand",
		ClientID:   client.ID,
		StaffIDs:   []string{pm.ID, designer.ID},
	})
	if err != nil {
		return err
	}
	if err := seedHistory(ctx, m, project.ID, []line{
		{pm, "Welcome aboard! This thread is where we'll share drafts and updates."},
		{client, "Thanks Ana, excited to get started."},
		{designer, "First logo concepts will be up by Friday."},
	}); err != nil {
		return err
	}

	direct, _, err := m.Directory.CreateDirect(ctx, pm, client)
	if err != nil {
		return err
	}
	if err := seedHistory(ctx, m, direct.ID, []line{
		{client, "Quick question about the invoice schedule."},
		{pm, "Sure, happy to walk you through it."},
	}); err != nil {
		return err
	}

	log.Printf("   ✅ project %s, direct %s", project.ID, direct.ID)
	return nil
}

type line struct {
	from models.Principal
	body string
}

func seedHistory(ctx context.Context, m *services.Messaging, conversationID string, lines []line) error {
	existing, err := m.Messages.List(ctx, conversationID, lines[0].from, 1, 0)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Printf("   ℹ️ %s already has messages", conversationID)
		return nil
	}
	for _, l := range lines {
		if _, err := m.Messages.Send(ctx, conversationID, l.from, services.TextContent(l.body)); err != nil {
			return err
		}
	}
	return nil
}
