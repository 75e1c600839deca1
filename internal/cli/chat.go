package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/omochice/taskflow-chat/internal/metrics"
	"github.com/omochice/taskflow-chat/internal/push"
	"github.com/omochice/taskflow-chat/internal/reconcile"
	"github.com/omochice/taskflow-chat/internal/store"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

func (a *App) newChatCmd() *cobra.Command {
	var (
		with        string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Open a conversation and chat interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if with == "" && len(args) == 0 {
				return errors.New("a conversation id or --with is required")
			}
			s, err := a.session()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						a.logger.Error("metrics server failed", "error", err)
					}
				}()
				defer srv.Close()
			}

			pushURL, err := push.EndpointURL(a.cfg.PushOrigin(), a.cfg.Push.Port, a.cfg.Push.Path, s.User.ID)
			if err != nil {
				a.logger.Warn("live updates disabled", "error", err)
			}

			st := store.New()
			r := reconcile.New(reconcile.Deps{
				API:     a.client(s.Token, m),
				Store:   st,
				Dialer:  a.dialer(),
				Self:    s.User,
				Logger:  a.logger,
				Metrics: m,
			}, reconcile.Options{
				PushURL:     pushURL,
				SearchDelay: a.cfg.Search.Debounce.Std(),
				Reconnect:   a.cfg.Push.Reconnect,
			})
			if err := r.Mount(ctx); err != nil {
				return err
			}
			defer r.Unmount()

			if with != "" {
				if _, err := r.StartConversation(ctx, with); err != nil {
					return err
				}
			} else if err := r.Select(ctx, args[0]); err != nil {
				fmt.Fprintf(a.errOut, "Could not load history: %v\n", err)
			}

			conv, _ := st.Conversation(st.SelectedID())
			if conv.ID == "" {
				conv.ID = st.SelectedID()
			}
			fmt.Fprintf(a.out, "Chatting with %s\n", conversationTitle(conv, s.User.ID))

			p := newPrinter(a.out, st, s.User.ID)
			stop := p.follow(func() {
				fmt.Fprintln(a.out, "Type your messages (or 'quit' to exit):")
			})

			scanner := bufio.NewScanner(a.in)
			for scanner.Scan() {
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}

				if text == "quit" || text == "exit" {
					break
				}

				if _, err := r.Send(ctx, text); err != nil {
					fmt.Fprintf(a.errOut, "Failed to send message: %v\n", err)
				}
			}

			if err := scanner.Err(); err != nil {
				a.logger.Warn("error reading input", "error", err)
			}

			stop()
			return nil
		},
	}
	cmd.Flags().StringVarP(&with, "with", "w", "", "start or reopen the conversation with this user id")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// printer writes persisted messages of the selected conversation once each,
// and a notice when another conversation gets unread messages.
type printer struct {
	w      io.Writer
	store  *store.Store
	selfID string

	mu     sync.Mutex
	shown  map[string]bool
	unread map[string]int
}

func newPrinter(w io.Writer, st *store.Store, selfID string) *printer {
	p := &printer{
		w:      w,
		store:  st,
		selfID: selfID,
		shown:  make(map[string]bool),
		unread: make(map[string]int),
	}
	for _, c := range st.Conversations() {
		p.unread[c.ID] = c.UnreadCount
	}
	return p
}

// follow renders the store, calls started, then renders again on every store
// change until the returned stop func is called. The subscription is taken
// before the first render so no change is missed.
func (p *printer) follow(started func()) (stop func()) {
	changes, cancel := p.store.Subscribe()
	p.render()
	started()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range changes {
			p.render()
		}
	}()

	return func() {
		cancel()
		<-done
		p.render()
	}
}

func (p *printer) render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.store.Snapshot()
	var current protocol.Conversation
	for _, c := range snap.Conversations {
		if c.ID == snap.SelectedID {
			current = c
			continue
		}
		if c.UnreadCount > p.unread[c.ID] {
			fmt.Fprintf(p.w, "*** new message from %s ***\n", conversationTitle(c, p.selfID))
		}
		p.unread[c.ID] = c.UnreadCount
	}

	for _, m := range snap.Messages {
		if m.IsProvisional() || p.shown[m.ID] {
			continue
		}
		p.shown[m.ID] = true
		printMessage(p.w, current, p.selfID, m)
	}
}
