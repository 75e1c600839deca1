package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omochice/taskflow-chat/internal/reconcile"
	"github.com/omochice/taskflow-chat/internal/store"
)

func (a *App) newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find users by name or email",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			r := reconcile.New(reconcile.Deps{
				API:    a.client(s.Token, nil),
				Store:  store.New(),
				Self:   s.User,
				Logger: a.logger,
			}, reconcile.Options{})

			results, err := r.SearchNow(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(a.out, "No users found.")
				return nil
			}
			for _, res := range results {
				fmt.Fprintf(a.out, "%-12s %-24s %-28s %s\n", res.User.ID, res.User.DisplayName(), res.User.Email, res.FriendStatus)
			}
			return nil
		},
	}
}
