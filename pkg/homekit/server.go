package homekit

import (
	"context"
	"fmt"
	"sync"

	"github.com/brutella/hap"
	"github.com/sirupsen/logrus"
)

type ServerConfig struct {
	Pin     string
	Storage string
	Addr    string
}

// Start publishes the accessory on the local network until ctx is cancelled.
func Start(ctx context.Context, wg *sync.WaitGroup, a *Accessory, cfg ServerConfig) error {
	server, err := hap.NewServer(hap.NewFsStore(cfg.Storage), a.A)
	if err != nil {
		return fmt.Errorf("error creating homekit server: %w", err)
	}
	server.Pin = cfg.Pin
	server.Addr = cfg.Addr

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Infof("homekit: serving accessory %q", a.Info.Name.Value())
		err := server.ListenAndServe(ctx)
		if err != nil && ctx.Err() == nil {
			logrus.Errorf("homekit: %s", err)
		}
	}()
	return nil
}
