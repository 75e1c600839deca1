package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/omochice/taskflow-chat/internal/api"
	"github.com/omochice/taskflow-chat/internal/auth"
	"github.com/omochice/taskflow-chat/internal/config"
	"github.com/omochice/taskflow-chat/internal/metrics"
	"github.com/omochice/taskflow-chat/internal/transport"
	"github.com/omochice/taskflow-chat/internal/transport/gobwas"
	"github.com/omochice/taskflow-chat/internal/transport/ws"
)

// session loads the saved login and checks it is still usable.
func (a *App) session() (*auth.Session, error) {
	s, err := auth.Load(a.cfg.Session.Path)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return nil, fmt.Errorf("%w: run 'messenger login' first", err)
		}
		return nil, err
	}
	if err := s.Resolve(time.Now()); err != nil {
		return nil, fmt.Errorf("%w: run 'messenger login' again", err)
	}
	return s, nil
}

func (a *App) client(token string, m *metrics.Metrics) *api.Client {
	opts := []api.Option{
		api.WithTimeout(a.cfg.API.Timeout.Std()),
		api.WithLogger(a.logger),
		api.WithMetrics(m),
	}
	if token != "" {
		opts = append(opts, api.WithToken(token))
	}
	if rl := a.cfg.API.RateLimit; rl.RPS > 0 {
		opts = append(opts, api.WithRateLimit(rl.RPS, rl.Burst))
	}
	return api.New(a.cfg.API.BaseURL, opts...)
}

func (a *App) dialer() transport.Dialer {
	switch a.cfg.Transport.Driver {
	case config.DriverGobwas:
		return gobwas.NewDialer()
	default:
		return ws.NewDialer()
	}
}
