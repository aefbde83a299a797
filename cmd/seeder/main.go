// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-engine/internal/config"
	"github.com/unclebandit/campaign-engine/internal/db"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/service"
)

const demoTag = 1

var rootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Apply the schema and load demo contacts, a list and campaigns",
	RunE:  runSeeder,
}

func init() {
	rootCmd.Flags().Int("tenant", 1, "tenant to seed")
	rootCmd.Flags().Int("contacts", 20, "number of contacts to create")
	rootCmd.Flags().Bool("schema-only", false, "only apply the schema")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("[SEEDER] Failed")
	}
}

func runSeeder(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.App.ConfigureLogging()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := db.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}
	logrus.Info("[SEEDER] Schema applied")
	if only, _ := cmd.Flags().GetBool("schema-only"); only {
		return nil
	}

	tenantID, _ := cmd.Flags().GetInt("tenant")
	n, _ := cmd.Flags().GetInt("contacts")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		var id int
		err := tx.QueryRowContext(ctx,
			`INSERT INTO contacts (tenant_id, name, number, email) VALUES ($1, $2, $3, $4) RETURNING id`,
			tenantID, fmt.Sprintf("Contact %02d", i), fmt.Sprintf("+55 11 9%04d-%04d", 1000+i, i), fmt.Sprintf("contact%02d@example.com", i),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to insert contact %d: %w", i, err)
		}
		if i%2 == 0 {
			if _, err := tx.ExecContext(ctx, `INSERT INTO contact_tags (contact_id, tag_id) VALUES ($1, $2)`, id, demoTag); err != nil {
				return fmt.Errorf("failed to tag contact %d: %w", id, err)
			}
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logrus.WithField("contacts", len(ids)).Info("[SEEDER] Contacts created")

	lists := &repository.ContactListRepository{DB: conn}
	list := &model.ContactList{TenantID: tenantID, Name: "Demo audience"}
	if err := lists.Create(ctx, list); err != nil {
		return err
	}

	// no validator: items are stored unchecked and stay sendable
	resolver := &service.AudienceResolver{
		Contacts: &repository.ContactRepository{DB: conn},
		Items:    &repository.ContactListItemRepository{DB: conn},
	}
	res, err := resolver.Resolve(ctx, list.ID, tenantID, ids)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"list_id": list.ID, "items": len(res.Created)}).Info("[SEEDER] Audience resolved")

	svc := &service.CampaignService{
		CampaignRepo: &repository.CampaignRepository{DB: conn},
		ListRepo:     lists,
	}
	start := time.Now().UTC().Add(time.Hour).Truncate(time.Minute)
	campaigns := []*model.Campaign{
		{
			TenantID:      tenantID,
			Name:          "Welcome message",
			Message:       "Hi {first_name}, welcome aboard!",
			ScheduledAt:   &start,
			ContactListID: &list.ID,
		},
		{
			TenantID:       tenantID,
			Name:           "Weekly digest",
			Message:        "Hello {name}, here is your weekly digest.",
			ScheduledAt:    &start,
			IsRecurring:    true,
			RecurrenceType: model.RecurrenceWeekly,
			MaxExecutions:  intPtr(8),
			ContactListID:  &list.ID,
		},
		{
			TenantID:       tenantID,
			Name:           "Tagged monthly",
			Message:        "Hi {first_name}, your monthly update.",
			ScheduledAt:    &start,
			IsRecurring:    true,
			RecurrenceType: model.RecurrenceMonthly,
			TagID:          intPtr(demoTag),
		},
	}
	for _, c := range campaigns {
		if err := svc.Create(ctx, c); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"campaign_id": c.ID, "name": c.Name}).Info("[SEEDER] Campaign created")
	}

	logrus.Info("[SEEDER] Database seeding completed successfully")
	return nil
}

func intPtr(i int) *int { return &i }
