// Command iotmd is the IoTM process entry point: it constructs the core's
// owned collaborators exactly once, wires the router/session/rule-index
// import-cycle break, replays the configuration store, starts the admin
// HTTP/WS/metrics surface and the cooperative event loop, and tears
// everything down in order on SIGINT/SIGTERM.
//
// Grounded on the teacher's main.go for the overall "load config, build
// collaborators, serve until signalled" shape, generalised from a single
// global mqttAdapter + http.ListenAndServe into the core's multi-
// collaborator construct-once-thread-by-borrow model (§9's explicit
// break from the teacher's own ConfigInstance/mqttAdapter globals).
package main

import (
	"context"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hackerspacekrk/iotm/internal/admin"
	"github.com/hackerspacekrk/iotm/internal/config"
	"github.com/hackerspacekrk/iotm/internal/loop"
	"github.com/hackerspacekrk/iotm/internal/mqttreport"
	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/router"
	"github.com/hackerspacekrk/iotm/internal/session"
	"github.com/hackerspacekrk/iotm/internal/store"
	"github.com/hackerspacekrk/iotm/internal/tags"
	"github.com/hackerspacekrk/iotm/internal/targetlayer"

	_ "github.com/hackerspacekrk/iotm/internal/adapter/ble"
	_ "github.com/hackerspacekrk/iotm/internal/adapter/zigbee"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("iotmd: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.Store.Path), &gorm.Config{})
	if err != nil {
		log.Fatalf("iotmd: opening store: %v", err)
	}
	cfgStore, err := store.Open(db)
	if err != nil {
		log.Fatalf("iotmd: %v", err)
	}

	report, err := mqttreport.New(mqttreport.Config{
		Broker:   cfg.MQTT.Broker,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		ClientID: cfg.MQTT.ClientID,
	})
	if err != nil {
		log.Fatalf("iotmd: mqtt report sink: %v", err)
	}
	defer report.Close()

	tagStore := tags.New()
	targetLayer := targetlayer.New()
	ruleIndex := rules.NewIndex(tagStore)
	sessions := session.NewRegistry(ruleIndex, tagStore, targetLayer, report, cfgStore)

	r := router.New(ruleIndex, tagStore, sessions)
	sessions.SetEmitter(r.Emit)
	ruleIndex.Route = r.RouteRuleActions

	watcher := store.NewWatcher(cfgStore, tagStore, ruleIndex, sessions, cfg.AdapterDir)
	if err := watcher.Load(); err != nil {
		log.Fatalf("iotmd: replaying configuration store: %v", err)
	}

	auth, err := admin.NewAuthenticator(db, cfg.Admin.Oidc, publicURLOf(cfg.Admin.ListenAddress))
	if err != nil {
		log.Fatalf("iotmd: admin auth: %v", err)
	}
	adminSrv := admin.New(sessions, ruleIndex, tagStore, watcher, r, auth)
	if cfg.Admin.ListenAddress != "" {
		go func() {
			if err := adminSrv.Listen(cfg.Admin.ListenAddress); err != nil {
				log.Printf("iotmd: admin server stopped: %v", err)
			}
		}()
	}

	l := loop.New(5 * time.Second)
	l.OnTick = sessions.Periodic

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	log.Printf("iotmd: running")
	loop.WaitForSignal(func() {
		sessions.ForEach(func(s *session.Session) {
			sessions.Delete(s.Name)
		})
		_ = adminSrv.Shutdown()
		cancel()
		l.Stop()
	})
	log.Printf("iotmd: shutdown complete")
}

// publicURLOf derives the admin surface's own base URL for the OIDC
// redirect_uri from its listen address. Admin deployments behind a proxy
// should set a dedicated public URL instead; this module's ambient-stack
// scope stops at a same-host default.
func publicURLOf(listenAddress string) string {
	if listenAddress == "" {
		return "http://localhost"
	}
	return "http://" + listenAddress
}
