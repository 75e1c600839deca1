// Command devbackend runs the in-memory messaging backend for local use and
// prints a messenger config pointing at it.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/omochice/taskflow-chat/internal/backendtest"
	"github.com/omochice/taskflow-chat/internal/config"
	"github.com/omochice/taskflow-chat/internal/logger"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

func main() {
	users := flag.String("users", "ada,bob", "comma separated demo users; each logs in as <name>@example.com")
	password := flag.String("password", "password", "password of every demo user")
	echo := flag.Bool("echo", true, "also push new messages to their author")
	level := flag.String("log-level", "info", "log level")
	writeConfig := flag.String("write-config", "", "also save the messenger config to this path")
	flag.Parse()

	log := logger.New(*level, "text", os.Stderr)
	b := backendtest.New(backendtest.WithLogger(log), backendtest.WithSenderEcho(*echo))

	for _, name := range strings.Split(*users, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		u := b.AddUser(protocol.User{
			FirstName: strings.ToUpper(name[:1]) + name[1:],
			Email:     name + "@example.com",
			Username:  name,
		}, *password)
		log.Info("demo user", "id", u.ID, "email", u.Email)
	}

	fmt.Printf(`api:
  base_url: %s
push:
  origin: %s
  port: %d
`, b.URL(), b.PushOrigin(), b.PushPort())

	if *writeConfig != "" {
		cfg := config.Default()
		cfg.API.BaseURL = b.URL()
		cfg.Push.Origin = b.PushOrigin()
		cfg.Push.Port = b.PushPort()
		if err := config.Save(cfg, *writeConfig); err != nil {
			log.Error("failed to write config", "error", err)
		} else {
			log.Info("config written", "path", *writeConfig)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info("shutting down", "signal", sig.String())
	b.Close()
}
