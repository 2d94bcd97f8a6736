package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bantzhq/bantz/internal/config"
	"github.com/bantzhq/bantz/internal/reminders"
	"github.com/bantzhq/bantz/pkg/models"
)

// buildRemindersCmd creates the "reminders" command group.
func buildRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Manage persistent reminders",
	}
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.AddCommand(
		buildRemindersAddCmd(),
		buildRemindersListCmd(),
		buildRemindersDeleteCmd(),
		buildRemindersSnoozeCmd(),
	)
	return cmd
}

func openReminderStore(cmd *cobra.Command) (*reminders.SQLStore, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return reminders.OpenStore(cfg.RemindersDB)
}

func buildRemindersAddCmd() *cobra.Command {
	var (
		at    string
		every string
	)
	cmd := &cobra.Command{
		Use:   "add [message]",
		Short: "Add a reminder",
		Example: `  bantz reminders add "su iç" --at 2026-02-12T09:00:00Z
  bantz reminders add "ilaç" --at 2026-02-12T09:00:00Z --every daily`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remindAt, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return usageErrorf("--at must be RFC 3339 (2026-02-12T09:00:00Z): %v", err)
			}
			if every != "" {
				if _, err := reminders.NextOccurrence(remindAt, every); err != nil {
					return usageErrorf("--every: %v", err)
				}
			}

			store, err := openReminderStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			reminder := &models.Reminder{
				ID:             uuid.NewString(),
				Message:        args[0],
				RemindAt:       remindAt,
				RepeatInterval: every,
			}
			if err := store.Add(cmd.Context(), reminder); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reminder added: %s\n", reminder.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "When to fire (RFC 3339)")
	cmd.Flags().StringVar(&every, "every", "", "Repeat interval (daily, günlük, 30m, cron)")
	cmd.MarkFlagRequired("at")
	return cmd
}

func buildRemindersListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openReminderStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No reminders.")
				return nil
			}
			for _, reminder := range list {
				repeat := ""
				if reminder.RepeatInterval != "" {
					repeat = " every " + reminder.RepeatInterval
				}
				fmt.Fprintf(out, "%s  %s  %s%s  [%s]\n",
					reminder.ID, reminder.RemindAt.Format(time.RFC3339),
					reminder.Message, repeat, reminder.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include done reminders")
	return cmd
}

func buildRemindersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a reminder",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openReminderStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reminder deleted: %s\n", args[0])
			return nil
		},
	}
}

func buildRemindersSnoozeCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "snooze [id]",
		Short: "Snooze a pending reminder",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				return usageErrorf("--for must be a positive duration")
			}
			store, err := openReminderStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			until := time.Now().Add(duration)
			if err := store.Snooze(cmd.Context(), args[0], until); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reminder snoozed until %s\n", until.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 10*time.Minute, "How long to snooze")
	return cmd
}
