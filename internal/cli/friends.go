package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) newFriendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "List friends and manage friend requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			friends, err := a.client(s.Token, nil).Friends(cmd.Context(), s.User.ID)
			if err != nil {
				return err
			}
			if len(friends) == 0 {
				fmt.Fprintln(a.out, "No friends yet.")
			}
			for _, f := range friends {
				fmt.Fprintf(a.out, "%-12s %s\n", f.ID, f.DisplayName())
			}
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <user-id>",
			Short: "Send a friend request",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.session()
				if err != nil {
					return err
				}
				if err := a.client(s.Token, nil).SendFriendRequest(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Friend request sent to %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "requests",
			Short: "List pending friend requests",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.session()
				if err != nil {
					return err
				}
				reqs, err := a.client(s.Token, nil).FriendRequests(cmd.Context())
				if err != nil {
					return err
				}
				if len(reqs) == 0 {
					fmt.Fprintln(a.out, "No pending requests.")
				}
				for _, r := range reqs {
					direction, other := "from", r.SenderID
					if r.SenderID == s.User.ID {
						direction, other = "to", r.ReceiverID
					}
					fmt.Fprintf(a.out, "%-12s %s %s\n", r.ID, direction, other)
				}
				return nil
			},
		},
		a.newRespondCmd("accept", true),
		a.newRespondCmd("reject", false),
	)
	return cmd
}

func (a *App) newRespondCmd(name string, accept bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <request-id>",
		Short: fmt.Sprintf("%s a friend request", name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			if err := a.client(s.Token, nil).RespondToFriendRequest(cmd.Context(), args[0], accept); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Request %s: %sed\n", args[0], name)
			return nil
		},
	}
}
