package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	fyneapp "fyne.io/fyne/v2/app"

	"yashubustudio/brandmatch/brandmatch"
)

const fyneAppID = "studio.yashubu.brandmatch"

// Run loads the configuration, opens the desktop UI and starts the matching
// service in the background so the window appears before models load.
func Run(configPath string) error {
	cfg, err := brandmatch.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}

	a := fyneapp.NewWithID(fyneAppID)
	u := buildUI(a, cfg, configPath)
	logger := log.New(io.MultiWriter(os.Stderr, u), "", 0)

	var svc atomic.Pointer[brandmatch.Service]
	go func() {
		s, err := brandmatch.NewService(context.Background(), cfg, logger)
		if err != nil {
			u.appendLog(fmt.Sprintf("No se pudo iniciar el servicio: %v", err))
			u.setStatus("Error")
			return
		}
		svc.Store(s)
		u.attach(s)
		u.prepareInBackground(s)
	}()

	u.w.ShowAndRun()
	if s := svc.Load(); s != nil {
		return s.Close()
	}
	return nil
}
