package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func (a *App) newConversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List your conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			convs, err := a.client(s.Token, nil).ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			printConversations(a.out, convs, s.User.ID, time.Now())
			return nil
		},
	}
}
