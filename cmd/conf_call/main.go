package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/conf_call/pkg/call"
	"github.com/arzzra/conf_call/pkg/media"
	"github.com/arzzra/conf_call/pkg/token"
	"github.com/arzzra/conf_call/pkg/ua"
)

func main() {
	var (
		registrar   = flag.String("registrar", "127.0.0.1:5060", "Registrar address host:port")
		listenAddr  = flag.String("listen", "0.0.0.0:5070", "Local listen address")
		username    = flag.String("user", "alice", "Local username")
		tokenRaw    = flag.String("token", "", "Capability token (overrides -user)")
		targets     = flag.String("invite", "", "Comma-separated addresses to invite")
		metricsAddr = flag.String("metrics", "", "Prometheus metrics address, e.g. :9090")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cred := token.NewCredential(*username, "AC00000000000000000000000000000000")
	if *tokenRaw != "" {
		parsed, err := token.Parse(*tokenRaw)
		if err != nil {
			log.Fatalf("Ошибка разбора токена: %v", err)
		}
		cred = parsed
	}

	agent, err := ua.NewSIPUserAgent(ua.Config{
		Registrar:  *registrar,
		ListenAddr: *listenAddr,
		Credential: cred,
	})
	if err != nil {
		log.Fatalf("Ошибка создания user agent: %v", err)
	}
	defer agent.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := agent.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Транспорт остановлен: %v", err)
		}
	}()

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Printf("Метрики недоступны: %v", err)
			}
		}()
	}

	localStream := media.NewStream()
	localStream.AddTrack(media.NewTrack(media.TrackKindAudio, "PCMU", 0, 8000))

	endpoint, err := call.NewEndpoint(agent,
		call.WithCredential(cred),
		call.WithLocalStream(localStream),
		call.WithAutoListen(false),
	)
	if err != nil {
		log.Fatalf("Ошибка создания endpoint: %v", err)
	}

	endpoint.On(call.EventListen, func(e call.Event) {
		log.Printf("Зарегистрирован как %s", endpoint.Address())
	})
	endpoint.On(call.EventListenFailed, func(e call.Event) {
		log.Printf("Регистрация не удалась: %v", e.Payload)
	})
	endpoint.On(call.EventInvite, func(e call.Event) {
		inv, ok := e.Payload.(*call.Invite)
		if !ok {
			return
		}
		log.Printf("Входящий вызов от %s, принимаем", inv.From())
		go func() {
			conv, err := inv.Accept(context.Background())
			if err != nil {
				log.Printf("Ошибка принятия вызова: %v", err)
				return
			}
			log.Printf("Разговор %s: %d участник(ов)", conv.SID(), conv.Size())
		}()
	})

	if err := endpoint.Listen(ctx).Wait(ctx); err != nil {
		log.Fatalf("Ошибка регистрации: %v", err)
	}

	if *targets != "" {
		addresses := strings.Split(*targets, ",")
		conv, err := endpoint.Invite(ctx, addresses...)
		if err != nil {
			log.Fatalf("Ошибка вызова: %v", err)
		}
		conv.OnDialogAdded(func(d *call.Dialog) {
			log.Printf("Участник %s присоединился к %s", d.Remote(), conv.SID())
		})
		fmt.Printf("Разговор %s установлен\n", conv.SID())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Завершение работы...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := endpoint.Leave(shutdownCtx); err != nil {
		log.Printf("Ошибка выхода из разговоров: %v", err)
	}
	if err := endpoint.Close(shutdownCtx); err != nil {
		log.Printf("Ошибка снятия регистрации: %v", err)
	}
}
