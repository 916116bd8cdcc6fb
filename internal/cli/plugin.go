package cli

import (
	"github.com/spf13/cobra"
)

func newAttemptCmd() *cobra.Command {
	var username, uuid, ip, serverIP string
	var whitelisted, requestCode bool
	var groups []string

	cmd := &cobra.Command{
		Use:   "attempt",
		Short: "Simulate a game server connection attempt",
		Long: `attempt sends what the game plugin would send when a player joins and prints
the decision. With --request-code it instead asks for a link code the way the
plugin's /link command does. Requires a key with the minecraft:connect scope.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestCode {
				req := map[string]string{"username": username, "uuid": uuid, "serverIp": serverIP}
				var result LinkCode
				if err := client.Post("/api/v1/minecraft/request-link-code", req, &result); err != nil {
					return err
				}
				NewOutput(cfg.Output).Print(result)
				return nil
			}

			req := map[string]any{
				"username":              username,
				"uuid":                  uuid,
				"ip":                    ip,
				"serverIp":             serverIP,
				"currentlyWhitelisted": whitelisted,
				"currentGroups":        groups,
			}
			var result Decision
			if err := client.Post("/api/v1/minecraft/connection-attempt", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Game username (required)")
	cmd.Flags().StringVar(&uuid, "uuid", "", "Game account UUID (required)")
	cmd.Flags().StringVar(&ip, "ip", "127.0.0.1", "Client IP address")
	cmd.Flags().StringVar(&serverIP, "server-ip", "", "Address the player connected to")
	cmd.Flags().BoolVar(&whitelisted, "whitelisted", false, "Whether the game server currently whitelists the player")
	cmd.Flags().StringSliceVar(&groups, "groups", nil, "Groups the player currently has in game")
	cmd.Flags().BoolVar(&requestCode, "request-code", false, "Request a link code instead of evaluating a join")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("uuid")

	return cmd
}
