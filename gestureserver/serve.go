package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/BertoldVdb/GestureResearch/apds9960/sensoropen"
	"github.com/BertoldVdb/GestureResearch/discovery"
	"github.com/BertoldVdb/GestureResearch/gesturemqtt"
	"github.com/BertoldVdb/GestureResearch/gestureserver/api"
	"github.com/BertoldVdb/GestureResearch/gestureserver/config"
	"github.com/BertoldVdb/go-misc/httplog"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func driverLog(debug bool) apds9960.LogFunc {
	if !debug {
		return nil
	}
	return log.Debugf
}

// mountSensors opens every configured sensor and mounts its API under its
// name and its index. Sensors that fail to open are skipped.
func mountSensors(opt *config.GesturedOpt, mux *http.ServeMux, aliases sensorAliases, pub *gesturemqtt.Publisher) ([]*api.Poller, []*sensoropen.Sensor) {
	var pollers []*api.Poller
	var sensors []*sensoropen.Sensor

	for _, sopt := range opt.Sensors {
		log.Infof("Initializing sensor '%s' at '%s':", sopt.Name, sopt.Path)

		opts := sopt.DriverOpts()
		s, err := sensoropen.OpenSensor(sopt.Path, &opts, driverLog(opt.Debug))
		if err != nil {
			log.Errorf(" -> Failed to open: %v", err)
			continue
		}

		poller := api.NewPoller(sopt.Name, s.Device, sopt.PollInterval, sopt.Config, log.StandardLogger())
		if pub != nil {
			poller.Subscribe(pub.Publish)
		}

		a, err := api.New(poller)
		if err != nil {
			log.Errorf(" -> Failed to create API: %v", err)
			s.Close()
			continue
		}

		index := strconv.Itoa(len(pollers))
		log.Infof(" -> Registering as '%s' and '%s'", sopt.Name, index)
		mux.Handle("/"+sopt.Name+"/", http.StripPrefix("/"+sopt.Name, a))
		mux.Handle("/"+index+"/", http.StripPrefix("/"+index, a))
		aliases.add(len(pollers), sopt.Name)

		pollers = append(pollers, poller)
		sensors = append(sensors, s)
	}

	return pollers, sensors
}

func ServeCmdRunE(cmd *cobra.Command, _ []string) error {
	desc := config.NewGesturedDesc()
	if err := desc.Parse(cmd); err != nil {
		return err
	}
	desc.PostParse()

	opt := &desc.Opt
	if err := opt.Validate(); err != nil {
		return err
	}

	if opt.API.APIKey != "" {
		user, pass := credentialFor(opt.API.APIKey, "", time.Now().AddDate(10, 0, 0))
		log.Infof("Password for username '%s': %s", user, pass)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	var sensors []*sensoropen.Sensor

	defer func() {
		stop()
		wg.Wait()
		for _, s := range sensors {
			s.Close()
		}
	}()

	var pub *gesturemqtt.Publisher
	if opt.MQTT.Broker != "" {
		var err error
		pub, err = gesturemqtt.New(opt.MQTT, log.StandardLogger())
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx)
		}()
	}

	var mux http.ServeMux
	aliases := make(sensorAliases)
	pollers, sensors := mountSensors(opt, &mux, aliases, pub)
	if len(pollers) == 0 {
		return errors.New("no sensors available")
	}

	names := make([]string, 0, len(pollers))
	for _, p := range pollers {
		names = append(names, p.Name())

		wg.Add(1)
		go func(p *api.Poller) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				log.Errorf("Sensor '%s' stopped: %v", p.Name(), err)
			}
		}(p)
	}

	namesJson, err := json.MarshalIndent(&names, "", "  ")
	if err != nil {
		return err
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(namesJson)
	})

	if opt.Discovery.Enable {
		announcer := discovery.NewAnnouncer(opt.Discovery.Name, opt.API.Port, names)
		if err := announcer.Start(opt.Discovery.Interface, 30*time.Second); err != nil {
			log.Warnf("Zeroconf announce failed: %v", err)
		} else {
			log.Infof("Announced on %s", announcer.CurrentAddress())
			defer announcer.Stop()
		}
	}

	logger := httplog.HTTPLog{
		LogOut:     log.Infof,
		ServerName: "gestured",
	}

	server := &http.Server{
		Addr:    opt.API.Address(),
		Handler: logger.GetHandler(requireAuth(mux.ServeHTTP, opt.API.APIKey, aliases)),

		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		log.Infof("Starting server on: http://%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorln("Server stopped:", err)
		}
		stop()
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
