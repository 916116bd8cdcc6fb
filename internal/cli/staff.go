package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func requireGuild() error {
	if cfg.GuildID == "" {
		return fmt.Errorf("--guild is required")
	}
	return nil
}

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List players awaiting approval, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}

			var result PendingList
			if err := client.Get(GuildPath(cfg.GuildID, "pending"), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

func newApproveCmd() *cobra.Command {
	var staff, notes string

	cmd := &cobra.Command{
		Use:   "approve <auth-id>",
		Short: "Approve a confirmed whitelist request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}

			req := map[string]string{"staffMemberId": staff, "notes": notes}
			var result Player
			if err := client.Post(GuildPath(cfg.GuildID, "approve", args[0]), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&staff, "staff", "", "Staff member recorded as approver (defaults to the API key name)")
	cmd.Flags().StringVar(&notes, "notes", "", "Note appended to the record")

	return cmd
}

func newRejectCmd() *cobra.Command {
	var staff, reason string

	cmd := &cobra.Command{
		Use:   "reject <auth-id>",
		Short: "Reject a confirmed whitelist request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}

			req := map[string]string{"staffMemberId": staff, "reason": reason}
			var result Player
			if err := client.Post(GuildPath(cfg.GuildID, "reject", args[0]), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&staff, "staff", "", "Staff member recorded as rejecter (defaults to the API key name)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the player (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func newBulkApproveCmd() *cobra.Command {
	var staff string

	cmd := &cobra.Command{
		Use:   "bulk-approve <count>",
		Short: "Approve up to count of the oldest pending requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}
			count, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("count must be a number: %w", err)
			}

			req := map[string]any{"count": count, "staffMemberId": staff}
			var result BulkResult
			if err := client.Post(GuildPath(cfg.GuildID, "bulk-approve"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&staff, "staff", "", "Staff member recorded as approver (defaults to the API key name)")

	return cmd
}

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Player record commands",
	}

	cmd.AddCommand(newPlayerShowCmd())
	cmd.AddCommand(newPlayerRevokeCmd())
	cmd.AddCommand(newPlayerSyncCmd())
	cmd.AddCommand(newPlayerSyncLogsCmd())

	return cmd
}

func newPlayerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <player-id>",
		Short: "Show a player record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}

			var result Player
			if err := client.Get(GuildPath(cfg.GuildID, "players", args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

func newPlayerRevokeCmd() *cobra.Command {
	var staff, reason string

	cmd := &cobra.Command{
		Use:   "revoke <player-id>",
		Short: "Revoke a player's whitelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}

			req := map[string]string{"staffMemberId": staff, "reason": reason}
			var result Player
			if err := client.Post(GuildPath(cfg.GuildID, "players", args[0], "revoke"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&staff, "staff", "", "Staff member recorded as revoker (defaults to the API key name)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason noted on the record")

	return cmd
}

func newPlayerSyncCmd() *cobra.Command {
	var groups []string

	cmd := &cobra.Command{
		Use:   "sync <player-id>",
		Short: "Recalculate a player's role sync against their current groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}

			req := map[string]any{"currentGroups": groups}
			var result RoleSync
			if err := client.Post(GuildPath(cfg.GuildID, "players", args[0], "role-sync"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&groups, "groups", nil, "Groups the player currently has in game")

	return cmd
}

func newPlayerSyncLogsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sync-logs <player-id>",
		Short: "Show a player's role sync history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}

			path := GuildPath(cfg.GuildID, "players", args[0], "role-sync", "logs") + "?limit=" + strconv.Itoa(limit)
			var result RoleSyncLogs
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	return cmd
}

func newLinkCodeCmd() *cobra.Command {
	var username, uuid string

	cmd := &cobra.Command{
		Use:   "link-code",
		Short: "Issue an auth code for a game account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireGuild(); err != nil {
				return err
			}

			req := map[string]string{"username": username, "uuid": uuid}
			var result AuthCode
			if err := client.Post(GuildPath(cfg.GuildID, "link-code"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Game username (required)")
	cmd.Flags().StringVar(&uuid, "uuid", "", "Game account UUID")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newConfirmCmd() *cobra.Command {
	var userID, username, displayName string

	cmd := &cobra.Command{
		Use:   "confirm <code>",
		Short: "Confirm an auth code on behalf of a chat user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"code":         args[0],
				"userId":      userID,
				"username":     username,
				"displayName": displayName,
			}
			var result Player
			if err := client.Post("/api/v1/minecraft/confirm", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Chat platform user ID (required)")
	cmd.Flags().StringVar(&username, "username", "", "Chat platform username")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Chat platform display name")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Replay chat membership events",
	}

	for _, event := range []string{"leave", "join"} {
		event := event
		cmd.AddCommand(&cobra.Command{
			Use:   event + " <user-id>",
			Short: "Apply a member " + event + " for the chat user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireGuild(); err != nil {
					return err
				}

				var result MembershipReport
				if err := client.Post(GuildPath(cfg.GuildID, "members", args[0], event), nil, &result); err != nil {
					return err
				}

				NewOutput(cfg.Output).Print(result)
				return nil
			},
		})
	}

	return cmd
}
